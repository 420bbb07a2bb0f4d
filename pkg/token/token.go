package token

type Type int

const (
	EOF Type = iota
	Comment
	Ident
	Number
	Var
	Return
	If
	Else
	For
	Func
	Foreign
	LParen
	RParen
	LBrace
	RBrace
	Semi
	Comma
	Eq
	Plus
	Minus
	Star
	Slash
	Lt
)

var KeywordMap = map[string]Type{
	"var":     Var,
	"return":  Return,
	"if":      If,
	"else":    Else,
	"for":     For,
	"func":    Func,
	"foreign": Foreign,
}

// Reverse mapping from Type to the keyword string
var TypeStrings = make(map[Type]string)

func init() {
	for str, typ := range KeywordMap {
		TypeStrings[typ] = str
	}
}

var punctStrings = map[Type]string{
	EOF:    "end of file",
	Ident:  "identifier",
	Number: "number",
	LParen: "(",
	RParen: ")",
	LBrace: "{",
	RBrace: "}",
	Semi:   ";",
	Comma:  ",",
	Eq:     "=",
	Plus:   "+",
	Minus:  "-",
	Star:   "*",
	Slash:  "/",
	Lt:     "<",
}

func (t Type) String() string {
	if s, ok := TypeStrings[t]; ok {
		return s
	}
	if s, ok := punctStrings[t]; ok {
		return s
	}
	return "unknown"
}

type Token struct {
	Type      Type
	Value     string
	FileIndex int
	Line      int
	Column    int
	Len       int
}
