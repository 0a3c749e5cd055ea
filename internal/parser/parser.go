// Package parser tokenizes one raw shell command line into a Pipeline: an
// ordered sequence of Stages plus a background flag. It is a single-pass,
// left-to-right scanner. A C job-control shell typically re-enters its
// parser from each forked pipeline child to claim its own stage out of
// memory the fork had copied; this implementation has no equivalent need,
// because the launcher never forks the shell's own Go code — it starts
// every pipeline stage as an independent os/exec.Cmd from the one
// long-lived shell process — so Parse simply walks the whole line once and
// returns every stage up front.
package parser

// MaxArgs caps the number of argv tokens collected for a single stage.
// Tokens beyond this count are silently dropped rather than panicking or
// truncating a token's own text, keeping argv well-formed and bounded.
const MaxArgs = 128

// RedirKind identifies the action a Redir performs on a stage's file
// descriptor.
type RedirKind int

const (
	// RedirRead opens Path read-only and directs fd 0 to it.
	RedirRead RedirKind = iota
	// RedirWriteTrunc opens Path write-only, creating and truncating it.
	RedirWriteTrunc
	// RedirWriteAppend opens Path write-only, creating and appending to it.
	RedirWriteAppend
	// RedirDup directs the fd to whatever PeerFD was opened to (used when
	// &> sets fd 2 to the same opened file as fd 1).
	RedirDup
)

// Redir is one redirection action planned for a stage's file descriptor.
type Redir struct {
	FD     int // the fd (0, 1, or 2) this redirection targets
	Kind   RedirKind
	Path   string // for RedirRead, RedirWriteTrunc, RedirWriteAppend
	PeerFD int    // for RedirDup: the fd whose opened file to share
}

// Stage is one program invocation within a pipeline.
type Stage struct {
	Argv   []string // Argv[0] is the program path
	Redirs []Redir  // every redirection seen, in the order they appeared on the line
}

// LastRedir returns the last redirection targeting fd, the one that
// actually determines where fd ends up pointed. A stage can carry more
// than one redirection for the same fd (e.g. "> a > b"); every earlier one
// still gets opened (and, for a write target, created and truncated) in
// order before being superseded — callers that need that side effect walk
// Redirs themselves instead of calling LastRedir.
func (s Stage) LastRedir(fd int) (Redir, bool) {
	for i := len(s.Redirs) - 1; i >= 0; i-- {
		if s.Redirs[i].FD == fd {
			return s.Redirs[i], true
		}
	}
	return Redir{}, false
}

// Pipeline is the parser's output: an ordered, non-empty sequence of stages
// plus whether the whole pipeline should run in the background.
type Pipeline struct {
	Stages     []Stage
	Background bool
}

// Parse tokenizes line into a Pipeline. It returns a nil Pipeline, with no
// error, for an empty (or all-whitespace) line: there is no plan to launch.
func Parse(line string) *Pipeline {
	s := &scanner{buf: line}
	s.trimTrailingSpace()

	if s.atEnd() {
		return nil
	}

	p := &Pipeline{}
	for {
		stage, pipeToNext := s.parseStage()
		p.Stages = append(p.Stages, stage)
		if !pipeToNext {
			break
		}
	}
	p.Background = s.background

	return p
}

// scanner holds the parser's position in the line being tokenized. Parse
// uses one scanner for the whole line; each parseStage call continues from
// where the previous stage stopped.
type scanner struct {
	buf        string
	pos        int
	end        int // exclusive; trimTrailingSpace moves this left
	background bool
}

func (s *scanner) trimTrailingSpace() {
	if s.end == 0 {
		s.end = len(s.buf)
	}
	for s.end > s.pos && isSpace(s.buf[s.end-1]) {
		s.end--
	}
}

func (s *scanner) atEnd() bool {
	return s.pos >= s.end
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t'
}

func (s *scanner) skipSpace() {
	for !s.atEnd() && isSpace(s.buf[s.pos]) {
		s.pos++
	}
}

// parseStage consumes tokens from the current position up to (and
// including) a pipe operator or the end of the line, returning the stage it
// built and whether a pipe to a further stage was seen.
func (s *scanner) parseStage() (Stage, bool) {
	stage := Stage{}

	for {
		s.skipSpace()
		if s.atEnd() {
			return stage, false
		}

		switch {
		case s.buf[s.pos] == '|':
			s.pos++
			return stage, true

		case s.buf[s.pos] == '&' && s.pos+1 < s.end && s.buf[s.pos+1] == '>':
			s.pos += 2
			path := s.readFilename()
			stage.Redirs = append(stage.Redirs,
				Redir{FD: 1, Kind: RedirWriteTrunc, Path: path},
				Redir{FD: 2, Kind: RedirDup, PeerFD: 1},
			)

		case s.buf[s.pos] == '&':
			s.background = true
			s.pos = s.end
			return stage, false

		case s.buf[s.pos] == '<':
			s.pos++
			path := s.readFilename()
			stage.Redirs = append(stage.Redirs, Redir{FD: 0, Kind: RedirRead, Path: path})

		case s.hasOp(">>"):
			s.pos += 2
			path := s.readFilename()
			stage.Redirs = append(stage.Redirs, Redir{FD: 1, Kind: RedirWriteAppend, Path: path})

		case s.buf[s.pos] == '>':
			s.pos++
			path := s.readFilename()
			stage.Redirs = append(stage.Redirs, Redir{FD: 1, Kind: RedirWriteTrunc, Path: path})

		case s.hasOp("1>"):
			s.pos += 2
			path := s.readFilename()
			stage.Redirs = append(stage.Redirs, Redir{FD: 1, Kind: RedirWriteTrunc, Path: path})

		case s.hasOp("2>"):
			s.pos += 2
			path := s.readFilename()
			stage.Redirs = append(stage.Redirs, Redir{FD: 2, Kind: RedirWriteTrunc, Path: path})

		default:
			if len(stage.Argv) < MaxArgs {
				stage.Argv = append(stage.Argv, s.readToken())
			} else {
				s.readToken() // still consume it so scanning progresses
			}
		}
	}
}

func (s *scanner) hasOp(op string) bool {
	if s.pos+len(op) > s.end {
		return false
	}
	return s.buf[s.pos:s.pos+len(op)] == op
}

// readFilename reads one whitespace- or quote-delimited token as a redirect
// target, skipping any leading whitespace first.
func (s *scanner) readFilename() string {
	s.skipSpace()
	return s.readToken()
}

// readToken reads one token: either a double-quoted run taken verbatim up
// to the closing quote (an unterminated quote runs to end-of-line, with no
// escape processing), or a run of characters that stops at whitespace or
// at a '|'.
func (s *scanner) readToken() string {
	if s.atEnd() {
		return ""
	}

	if s.buf[s.pos] == '"' {
		s.pos++
		start := s.pos
		for !s.atEnd() && s.buf[s.pos] != '"' {
			s.pos++
		}
		tok := s.buf[start:s.pos]
		if !s.atEnd() {
			s.pos++ // consume closing quote
		}
		return tok
	}

	start := s.pos
	for !s.atEnd() && !isSpace(s.buf[s.pos]) && s.buf[s.pos] != '|' {
		s.pos++
	}
	return s.buf[start:s.pos]
}
