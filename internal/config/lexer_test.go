package config

import (
	"testing"

	"github.com/onsi/gomega"
)

func TestLexerTokensAndPositions(t *testing.T) {
	g := gomega.NewWithT(t)

	lex := NewLexer("server {\n  listen 8080;\n}")

	tok := lex.NextToken()
	g.Expect(tok.Type).To(gomega.Equal(TokIdent))
	g.Expect(tok.Value).To(gomega.Equal("server"))
	g.Expect(tok.Line).To(gomega.Equal(1))

	tok = lex.NextToken()
	g.Expect(tok.Type).To(gomega.Equal(TokLBrace))

	tok = lex.NextToken()
	g.Expect(tok.Type).To(gomega.Equal(TokIdent))
	g.Expect(tok.Value).To(gomega.Equal("listen"))
	g.Expect(tok.Line).To(gomega.Equal(2))

	tok = lex.NextToken()
	g.Expect(tok.Value).To(gomega.Equal("8080"))

	tok = lex.NextToken()
	g.Expect(tok.Type).To(gomega.Equal(TokSemicolon))

	tok = lex.NextToken()
	g.Expect(tok.Type).To(gomega.Equal(TokRBrace))

	tok = lex.NextToken()
	g.Expect(tok.Type).To(gomega.Equal(TokEOF))
}

func TestLexerSkipsComments(t *testing.T) {
	g := gomega.NewWithT(t)

	lex := NewLexer("# a comment\nroot /var/www; # trailing\n")
	tok := lex.NextToken()
	g.Expect(tok.Value).To(gomega.Equal("root"))

	tok = lex.NextToken()
	g.Expect(tok.Value).To(gomega.Equal("/var/www"))

	tok = lex.NextToken()
	g.Expect(tok.Type).To(gomega.Equal(TokSemicolon))

	tok = lex.NextToken()
	g.Expect(tok.Type).To(gomega.Equal(TokEOF))
}

func TestLexerQuotedStringEscapes(t *testing.T) {
	g := gomega.NewWithT(t)

	lex := NewLexer(`"line\nbreak"`)
	tok := lex.NextToken()
	g.Expect(tok.Type).To(gomega.Equal(TokIdent))
	g.Expect(tok.Value).To(gomega.Equal("line\nbreak"))
}

func TestLexerUnterminatedStringIsError(t *testing.T) {
	g := gomega.NewWithT(t)

	lex := NewLexer(`"unterminated`)
	tok := lex.NextToken()
	g.Expect(tok.Type).To(gomega.Equal(TokError))
}

func TestLexerNewlineInStringIsError(t *testing.T) {
	g := gomega.NewWithT(t)

	lex := NewLexer("\"broken\nstring\"")
	tok := lex.NextToken()
	g.Expect(tok.Type).To(gomega.Equal(TokError))
}
