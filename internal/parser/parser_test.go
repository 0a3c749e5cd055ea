package parser_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arthurfmn/tsh/internal/parser"
)

func TestParseEmptyLine(t *testing.T) {
	t.Parallel()
	require.Nil(t, parser.Parse(""))
	require.Nil(t, parser.Parse("   \t  "))
}

func TestParseSimpleCommand(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	p := parser.Parse("/bin/echo hello world")
	require.NotNil(p)
	require.False(p.Background)
	require.Len(p.Stages, 1)
	require.Equal([]string{"/bin/echo", "hello", "world"}, p.Stages[0].Argv)
	require.Empty(p.Stages[0].Redirs)
}

func TestParseBackgroundTrailingAmp(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	p := parser.Parse("/bin/sleep 5 &")
	require.NotNil(p)
	require.True(p.Background)
	require.Equal([]string{"/bin/sleep", "5"}, p.Stages[0].Argv)
}

func TestParseQuotedArgument(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	p := parser.Parse(`/bin/echo "hello world" done`)
	require.NotNil(p)
	require.Equal([]string{"/bin/echo", "hello world", "done"}, p.Stages[0].Argv)
}

func TestParseUnterminatedQuoteConsumesToEndOfLine(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	p := parser.Parse(`/bin/echo "hello world`)
	require.NotNil(p)
	require.Equal([]string{"/bin/echo", "hello world"}, p.Stages[0].Argv)
}

func TestParsePipeline(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	p := parser.Parse("/bin/echo abc | /usr/bin/tr a-z A-Z")
	require.NotNil(p)
	require.False(p.Background)
	require.Len(p.Stages, 2)
	require.Equal([]string{"/bin/echo", "abc"}, p.Stages[0].Argv)
	require.Equal([]string{"/usr/bin/tr", "a-z", "A-Z"}, p.Stages[1].Argv)
}

func TestParseRedirectionPrecedence(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	// later redirection for the same fd overrides the earlier one, but both
	// are recorded: the launcher still opens /tmp/a before superseding it
	p := parser.Parse("/bin/echo hi > /tmp/a > /tmp/b")
	require.NotNil(p)
	require.Len(p.Stages, 1)

	require.Len(p.Stages[0].Redirs, 2)
	require.Equal(parser.Redir{FD: 1, Kind: parser.RedirWriteTrunc, Path: "/tmp/a"}, p.Stages[0].Redirs[0])
	require.Equal(parser.Redir{FD: 1, Kind: parser.RedirWriteTrunc, Path: "/tmp/b"}, p.Stages[0].Redirs[1])

	redir, ok := p.Stages[0].LastRedir(1)
	require.True(ok)
	require.Equal(parser.RedirWriteTrunc, redir.Kind)
	require.Equal("/tmp/b", redir.Path)
}

func TestParseAllRedirectionForms(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	cases := []struct {
		name string
		line string
		fd   int
		kind parser.RedirKind
		path string
	}{
		{"read", "cat < in.txt", 0, parser.RedirRead, "in.txt"},
		{"append", "cat >> out.txt", 1, parser.RedirWriteAppend, "out.txt"},
		{"truncate", "cat > out.txt", 1, parser.RedirWriteTrunc, "out.txt"},
		{"explicit-stdout", "cat 1> out.txt", 1, parser.RedirWriteTrunc, "out.txt"},
		{"stderr", "cat 2> err.txt", 2, parser.RedirWriteTrunc, "err.txt"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			p := parser.Parse(tc.line)
			require.NotNil(p)
			redir, ok := p.Stages[0].LastRedir(tc.fd)
			require.True(ok)
			require.Equal(tc.kind, redir.Kind)
			require.Equal(tc.path, redir.Path)
		})
	}
}

func TestParseAmpRedirectsBothStdoutAndStderr(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	p := parser.Parse("cat &> both.txt")
	require.NotNil(p)

	stdout, ok := p.Stages[0].LastRedir(1)
	require.True(ok)
	require.Equal(parser.RedirWriteTrunc, stdout.Kind)
	require.Equal("both.txt", stdout.Path)

	stderr, ok := p.Stages[0].LastRedir(2)
	require.True(ok)
	require.Equal(parser.RedirDup, stderr.Kind)
	require.Equal(1, stderr.PeerFD)
}

func TestParseQuotedRedirectionTarget(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	p := parser.Parse(`cat > "my file.txt"`)
	require.NotNil(p)
	redir, ok := p.Stages[0].LastRedir(1)
	require.True(ok)
	require.Equal("my file.txt", redir.Path)
}

func TestParseBareRedirectionHasEmptyArgv(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	p := parser.Parse("> out.txt")
	require.NotNil(p)
	require.Empty(p.Stages[0].Argv)

	redir, ok := p.Stages[0].LastRedir(1)
	require.True(ok)
	require.Equal("out.txt", redir.Path)
}

func TestParseArgvCapAtMaxArgs(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	line := "cmd"
	for i := 0; i < parser.MaxArgs+10; i++ {
		line += " a"
	}

	p := parser.Parse(line)
	require.NotNil(p)
	require.Len(p.Stages[0].Argv, parser.MaxArgs)
}
