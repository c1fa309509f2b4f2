package query

import (
	"fmt"
	"strings"
	"unicode"

	"go.mongodb.org/mongo-driver/bson"
)

// CompileVQL compiles a token search expression into a membership filter on
// the search relation. Tokens are matched exactly after lowercasing.
//
//	expr  := and ('|' and)*
//	and   := unary ('&'? unary)*
//	unary := ('!' | '-') unary | '(' expr ')' | token
func CompileVQL(src string) (bson.M, error) {
	toks, err := lexVQL(src)
	if err != nil {
		return nil, err
	}
	p := &vqlParser{toks: toks}
	out, err := p.expr()
	if err != nil {
		return nil, err
	}
	if p.pos < len(p.toks) {
		return nil, fmt.Errorf("%w: vql: unexpected %q", ErrValidation, p.toks[p.pos].text)
	}
	return out, nil
}

type vqlKind int

const (
	vqlToken vqlKind = iota
	vqlAnd
	vqlOr
	vqlNot
	vqlOpen
	vqlClose
)

type vqlTok struct {
	kind vqlKind
	text string
}

func lexVQL(src string) ([]vqlTok, error) {
	var out []vqlTok
	rs := []rune(src)
	for i := 0; i < len(rs); {
		r := rs[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '&':
			out = append(out, vqlTok{vqlAnd, "&"})
			i++
		case r == '|':
			out = append(out, vqlTok{vqlOr, "|"})
			i++
		case r == '(':
			out = append(out, vqlTok{vqlOpen, "("})
			i++
		case r == ')':
			out = append(out, vqlTok{vqlClose, ")"})
			i++
		case r == '!' || r == '-':
			out = append(out, vqlTok{vqlNot, string(r)})
			i++
		default:
			j := i
			for j < len(rs) && !unicode.IsSpace(rs[j]) && !strings.ContainsRune("&|()!", rs[j]) {
				j++
			}
			out = append(out, vqlTok{vqlToken, strings.ToLower(string(rs[i:j]))})
			i = j
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: vql: empty expression", ErrValidation)
	}
	return out, nil
}

type vqlParser struct {
	toks []vqlTok
	pos  int
}

func (p *vqlParser) peek() (vqlTok, bool) {
	if p.pos >= len(p.toks) {
		return vqlTok{}, false
	}
	return p.toks[p.pos], true
}

func (p *vqlParser) expr() (bson.M, error) {
	first, err := p.and()
	if err != nil {
		return nil, err
	}
	alts := bson.A{first}
	for {
		t, ok := p.peek()
		if !ok || t.kind != vqlOr {
			break
		}
		p.pos++
		next, err := p.and()
		if err != nil {
			return nil, err
		}
		alts = append(alts, next)
	}
	if len(alts) == 1 {
		return first, nil
	}
	return bson.M{"$or": alts}, nil
}

func (p *vqlParser) and() (bson.M, error) {
	first, err := p.unary()
	if err != nil {
		return nil, err
	}
	terms := []bson.M{first}
	for {
		t, ok := p.peek()
		if !ok || t.kind == vqlOr || t.kind == vqlClose {
			break
		}
		if t.kind == vqlAnd {
			p.pos++
		}
		next, err := p.unary()
		if err != nil {
			return nil, err
		}
		terms = append(terms, next)
	}
	return And(terms...), nil
}

func (p *vqlParser) unary() (bson.M, error) {
	t, ok := p.peek()
	if !ok {
		return nil, fmt.Errorf("%w: vql: unexpected end of expression", ErrValidation)
	}
	p.pos++
	switch t.kind {
	case vqlNot:
		inner, err := p.unary()
		if err != nil {
			return nil, err
		}
		if tok, isToken := inner[SearchField].(string); isToken && len(inner) == 1 {
			return bson.M{SearchField: bson.M{"$ne": tok}}, nil
		}
		return bson.M{"$nor": bson.A{inner}}, nil
	case vqlOpen:
		inner, err := p.expr()
		if err != nil {
			return nil, err
		}
		if c, ok := p.peek(); !ok || c.kind != vqlClose {
			return nil, fmt.Errorf("%w: vql: missing )", ErrValidation)
		}
		p.pos++
		return inner, nil
	case vqlToken:
		return bson.M{SearchField: t.text}, nil
	}
	return nil, fmt.Errorf("%w: vql: unexpected %q", ErrValidation, t.text)
}
