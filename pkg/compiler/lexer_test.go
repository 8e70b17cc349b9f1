package compiler

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func lexKinds(t *testing.T, input string) []TokenType {
	t.Helper()
	tokens, err := Lex(input)
	if err != nil {
		t.Fatalf("Lex(%q) failed: %v", input, err)
	}
	kinds := make([]TokenType, len(tokens))
	for i, tok := range tokens {
		kinds[i] = tok.Type
	}
	return kinds
}

func lexSingle(t *testing.T, input string) Token {
	t.Helper()
	tokens, err := Lex(input)
	if err != nil {
		t.Fatalf("Lex(%q) failed: %v", input, err)
	}
	if len(tokens) != 2 || tokens[1].Type != EOF {
		t.Fatalf("Lex(%q) = %v, want exactly one token plus EOF", input, tokens)
	}
	return tokens[0]
}

func TestLexTokens(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []Token
	}{
		{
			name:  "Empty",
			input: "",
			want:  []Token{{Type: EOF, Line: 1, Column: 1}},
		},
		{
			name:  "Declaration",
			input: "uint8 x = 10;",
			want: []Token{
				{Type: UINT8, Lexeme: "uint8", Line: 1, Column: 1},
				{Type: IDENTIFIER, Lexeme: "x", Line: 1, Column: 7},
				{Type: ASSIGN, Lexeme: "=", Line: 1, Column: 9},
				{Type: INTEGER, Lexeme: "10", Line: 1, Column: 11},
				{Type: SEMICOLON, Lexeme: ";", Line: 1, Column: 13},
				{Type: EOF, Line: 1, Column: 14},
			},
		},
		{
			name:  "Positions Across Lines",
			input: "uint16 y;\ny = 1;",
			want: []Token{
				{Type: UINT16, Lexeme: "uint16", Line: 1, Column: 1},
				{Type: IDENTIFIER, Lexeme: "y", Line: 1, Column: 8},
				{Type: SEMICOLON, Lexeme: ";", Line: 1, Column: 9},
				{Type: IDENTIFIER, Lexeme: "y", Line: 2, Column: 1},
				{Type: ASSIGN, Lexeme: "=", Line: 2, Column: 3},
				{Type: INTEGER, Lexeme: "1", Line: 2, Column: 5},
				{Type: SEMICOLON, Lexeme: ";", Line: 2, Column: 6},
				{Type: EOF, Line: 2, Column: 7},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Lex(tt.input)
			if err != nil {
				t.Fatalf("Lex(%q) failed: %v", tt.input, err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Lex(%q) mismatch (-want +got):\n%s", tt.input, diff)
			}
		})
	}
}

func TestLexKinds(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []TokenType
	}{
		{
			name:  "Operators",
			input: "+ - * / % << >> & && || ! ++ -- = == != < > <= >=",
			want: []TokenType{
				PLUS, MINUS, STAR, SLASH, PERCENT, SHL_OP, SHR_OP,
				AND, AND_LOGICAL, OR_LOGICAL, NOT, PLUS_PLUS, MINUS_MINUS,
				ASSIGN, EQUALS, NOT_EQ, LESS, GREATER, LESS_EQ, GREATER_EQ,
				EOF,
			},
		},
		{
			name:  "Delimiters",
			input: "{ } ( ) [ ] ; , :",
			want: []TokenType{
				LBRACE, RBRACE, LPAREN, RPAREN, LBRACKET, RBRACKET,
				SEMICOLON, COMMA, COLON, EOF,
			},
		},
		{
			name:  "Keywords",
			input: "const static void bool uint8 uint16 uint32 string if else return do while for switch case default continue break goto cast alloc true false null",
			want: []TokenType{
				CONST, STATIC, VOID, BOOL, UINT8, UINT16, UINT32, STRING,
				IF, ELSE, RETURN, DO, WHILE, FOR, SWITCH, CASE, DEFAULT,
				CONTINUE, BREAK, GOTO, CAST, ALLOC, TRUE, FALSE, NULL,
				EOF,
			},
		},
		{
			name:  "Identifiers",
			input: "variableName _under_score if2",
			want:  []TokenType{IDENTIFIER, IDENTIFIER, IDENTIFIER, EOF},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := lexKinds(t, tt.input)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("token kinds mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLexLiterals(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		wantType   TokenType
		wantLexeme string
	}{
		{"Decimal", "123", INTEGER, "123"},
		{"Zero", "0", INTEGER, "0"},
		{"Hex Lowercase", "0x1a", INTEGER, "26"},
		{"Hex Uppercase", "0XFF", INTEGER, "255"},
		{"Char", "'A'", INTEGER, "65"},
		{"Char Escape", "'\\n'", INTEGER, "10"},
		{"Char Octal Escape", "'\\101'", INTEGER, "65"},
		{"Char Packed Pair", "'AB'", INTEGER, "16961"},
		{"String", `"hello"`, STRING_LIT, "hello"},
		{"String Escapes", `"a\tb\n"`, STRING_LIT, "a\tb\n"},
		{"String Quote Escape", `"say \"hi\""`, STRING_LIT, `say "hi"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok := lexSingle(t, tt.input)
			if tok.Type != tt.wantType || tok.Lexeme != tt.wantLexeme {
				t.Errorf("Lex(%q) = %s %q, want %s %q",
					tt.input, tok.Type, tok.Lexeme, tt.wantType, tt.wantLexeme)
			}
		})
	}
}

func TestLexComments(t *testing.T) {
	input := "uint8 a; // trailing comment\n/* block\ncomment */ uint8 b;"
	want := []TokenType{UINT8, IDENTIFIER, SEMICOLON, UINT8, IDENTIFIER, SEMICOLON, EOF}
	got := lexKinds(t, input)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("token kinds mismatch (-want +got):\n%s", diff)
	}
}

func TestLexErrors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantMsg string
	}{
		{"Unterminated String", `"abc`, "Unterminated string literal"},
		{"Unterminated Char", "'a", "Unterminated character literal"},
		{"Empty Char", "''", "Empty character literal"},
		{"Char Too Long", "'abcde'", "Character literal is too long"},
		{"Unterminated Block Comment", "/* x", "Unterminated block comment"},
		{"Single Pipe", "|", `Unexpected character "|"`},
		{"Bare Hex Prefix", "0x", "Invalid hexadecimal literal"},
		{"Unknown Escape", `"\q"`, "Unknown escape sequence"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Lex(tt.input)
			if err == nil {
				t.Fatalf("Lex(%q) succeeded, want error", tt.input)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("Lex(%q) error = %q, want it to contain %q", tt.input, err, tt.wantMsg)
			}
		})
	}
}
