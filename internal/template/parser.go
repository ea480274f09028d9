package template

import (
	"regexp"
	"strings"

	"github.com/leapstack-labs/leapmap/internal/reflection"
	"github.com/leapstack-labs/leapmap/pkg/core"
)

var (
	forHeadRe  = regexp.MustCompile(`^for\s+(?:([A-Za-z_]\w*)\s*,\s*)?([A-Za-z_]\w*)\s+in\s+(.+)$`)
	optionRe   = regexp.MustCompile(`\s+([A-Za-z_]\w*)\s*=\s*"((?:[^"\\]|\\.)*)"\s*$`)
	allOptRe   = regexp.MustCompile(`([A-Za-z_]\w*)\s*=\s*"((?:[^"\\]|\\.)*)"`)
	bindRe     = regexp.MustCompile(`^bind\s+([A-Za-z_]\w*)\s*=\s*(.+)$`)
	includeRe  = regexp.MustCompile(`^include\s+(?:"([^"]+)"|'([^']+)')$`)
	identRe    = regexp.MustCompile(`^[A-Za-z_]\w*$`)
	forOptions = map[string]bool{"open": true, "close": true, "separator": true, "nullable": true}
)

// Parse tokenizes and parses input into a Template. Include statements are
// left unresolved; see Compile.
func Parse(input, file string) (*Template, error) {
	tokens, err := NewLexer(input, file).Tokenize()
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens, file: file}
	nodes, end, err := p.parseNodes()
	if err != nil {
		return nil, err
	}
	if end != nil {
		return nil, NewUnmatchedBlockError(end.pos, end.Kind)
	}
	return &Template{Nodes: nodes, File: file}, nil
}

type parser struct {
	tokens []Token
	pos    int
	file   string
}

// parseNodes reads nodes until EOF or a statement that continues or closes
// an enclosing block, which is returned to the caller.
func (p *parser) parseNodes() ([]Node, *StmtNode, error) {
	var nodes []Node
	for p.pos < len(p.tokens) {
		tok := p.tokens[p.pos]
		p.pos++

		switch tok.Type {
		case TokenEOF:
			return nodes, nil, nil

		case TokenText:
			nodes = append(nodes, &TextNode{nodeBase: nodeBase{pos: tok.Pos}, Text: tok.Value})

		case TokenExpr:
			if tok.Value == "" {
				return nil, nil, NewParseError(tok.Pos, "empty expression")
			}
			nodes = append(nodes, &ExprNode{nodeBase: nodeBase{pos: tok.Pos}, Expr: tok.Value})

		case TokenParam:
			n, err := parseParam(tok)
			if err != nil {
				return nil, nil, err
			}
			nodes = append(nodes, n)

		case TokenStmt:
			stmt, err := parseStmt(tok)
			if err != nil {
				return nil, nil, err
			}
			switch stmt.Kind {
			case StmtInclude:
				nodes = append(nodes, &IncludeNode{nodeBase: stmt.nodeBase, RefID: stmt.Name})
			case StmtBind:
				nodes = append(nodes, &BindNode{nodeBase: stmt.nodeBase, Name: stmt.Name, Expr: stmt.Expr})
			case StmtIf:
				n, err := p.parseIf(stmt)
				if err != nil {
					return nil, nil, err
				}
				nodes = append(nodes, n)
			case StmtChoose:
				n, err := p.parseChoose(stmt)
				if err != nil {
					return nil, nil, err
				}
				nodes = append(nodes, n)
			case StmtFor:
				n, err := p.parseFor(stmt)
				if err != nil {
					return nil, nil, err
				}
				nodes = append(nodes, n)
			case StmtWhere, StmtSet, StmtTrim:
				n, err := p.parseTrim(stmt)
				if err != nil {
					return nil, nil, err
				}
				nodes = append(nodes, n)
			default:
				return nodes, stmt, nil
			}
		}
	}
	return nodes, nil, nil
}

// parseBody parses the body of a block opened by open and returns the
// statement that ended it, which must be one of allowed.
func (p *parser) parseBody(open *StmtNode, allowed ...StmtKind) ([]Node, *StmtNode, error) {
	body, end, err := p.parseNodes()
	if err != nil {
		return nil, nil, err
	}
	if end == nil {
		return nil, nil, NewUnmatchedBlockError(open.pos, open.Kind)
	}
	for _, k := range allowed {
		if end.Kind == k {
			return body, end, nil
		}
	}
	return nil, nil, NewUnmatchedBlockError(end.pos, end.Kind)
}

func (p *parser) parseIf(open *StmtNode) (Node, error) {
	body, end, err := p.parseBody(open, StmtElif, StmtElse, StmtEndIf)
	if err != nil {
		return nil, err
	}
	if end.Kind == StmtEndIf {
		return &IfBlock{nodeBase: open.nodeBase, Condition: open.Expr, Body: body}, nil
	}

	choose := &ChooseBlock{nodeBase: open.nodeBase}
	choose.Branches = append(choose.Branches, Branch{Condition: open.Expr, Body: body, pos: open.pos})
	for end.Kind == StmtElif {
		elif := end
		if body, end, err = p.parseBody(elif, StmtElif, StmtElse, StmtEndIf); err != nil {
			return nil, err
		}
		choose.Branches = append(choose.Branches, Branch{Condition: elif.Expr, Body: body, pos: elif.pos})
	}
	if end.Kind == StmtElse {
		if body, _, err = p.parseBody(end, StmtEndIf); err != nil {
			return nil, err
		}
		choose.Otherwise = body
	}
	return choose, nil
}

func (p *parser) parseChoose(open *StmtNode) (Node, error) {
	lead, end, err := p.parseBody(open, StmtWhen, StmtOtherwise, StmtEndChoose)
	if err != nil {
		return nil, err
	}
	if err := onlyWhitespace(lead, "choose"); err != nil {
		return nil, err
	}

	choose := &ChooseBlock{nodeBase: open.nodeBase}
	for end.Kind == StmtWhen {
		when := end
		var body []Node
		if body, end, err = p.parseBody(when, StmtWhen, StmtOtherwise, StmtEndChoose); err != nil {
			return nil, err
		}
		choose.Branches = append(choose.Branches, Branch{Condition: when.Expr, Body: body, pos: when.pos})
	}
	if end.Kind == StmtOtherwise {
		other := end
		var body []Node
		if body, _, err = p.parseBody(other, StmtEndChoose); err != nil {
			return nil, err
		}
		choose.Otherwise = body
	}
	if len(choose.Branches) == 0 {
		return nil, NewParseError(open.pos, "'choose' requires at least one 'when'")
	}
	return choose, nil
}

func (p *parser) parseFor(open *StmtNode) (Node, error) {
	body, _, err := p.parseBody(open, StmtEndFor)
	if err != nil {
		return nil, err
	}
	nullable, err := parseBoolOption(open, "nullable")
	if err != nil {
		return nil, err
	}
	return &ForBlock{
		nodeBase:  open.nodeBase,
		VarName:   open.VarName,
		IndexName: open.IndexName,
		IterExpr:  open.Expr,
		Open:      open.Options["open"],
		Close:     open.Options["close"],
		Separator: open.Options["separator"],
		Nullable:  nullable,
		Body:      body,
	}, nil
}

var (
	whereOverrides = []string{"AND ", "OR ", "AND\n", "OR\n", "AND\r", "OR\r", "AND\t", "OR\t"}
	setOverrides   = []string{","}
)

func (p *parser) parseTrim(open *StmtNode) (Node, error) {
	body, _, err := p.parseBody(open, open.Kind.closer())
	if err != nil {
		return nil, err
	}
	n := &TrimBlock{nodeBase: open.nodeBase, Body: body}
	switch open.Kind {
	case StmtWhere:
		n.Kind = TrimWhere
		n.Prefix = "WHERE"
		n.PrefixOverrides = whereOverrides
	case StmtSet:
		n.Kind = TrimSet
		n.Prefix = "SET"
		n.PrefixOverrides = setOverrides
		n.SuffixOverrides = setOverrides
	default:
		n.Kind = TrimGeneral
		n.Prefix = open.Options["prefix"]
		n.Suffix = open.Options["suffix"]
		n.PrefixOverrides = splitOverrides(open.Options["prefixOverrides"])
		n.SuffixOverrides = splitOverrides(open.Options["suffixOverrides"])
	}
	return n, nil
}

// splitOverrides splits a "|" separated override list. Overrides are
// matched case-insensitively.
func splitOverrides(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, o := range strings.Split(s, "|") {
		if o != "" {
			out = append(out, o)
		}
	}
	return out
}

// onlyWhitespace rejects content between a block header and its first branch.
func onlyWhitespace(nodes []Node, block string) error {
	for _, n := range nodes {
		if t, ok := n.(*TextNode); ok && strings.TrimSpace(t.Text) == "" {
			continue
		}
		return NewParseErrorf(n.Pos(), "unexpected content in '%s' before first branch", block)
	}
	return nil
}

// parseStmt classifies a {* ... *} statement and extracts its parts.
func parseStmt(tok Token) (*StmtNode, error) {
	text := strings.TrimSpace(tok.Value)
	head := strings.TrimSuffix(text, ":")
	head = strings.TrimSpace(head)
	keyword := head
	if i := strings.IndexAny(head, " \t\n\r("); i >= 0 {
		keyword = head[:i]
	}
	rest := strings.TrimSpace(strings.TrimPrefix(head, keyword))
	stmt := &StmtNode{nodeBase: nodeBase{pos: tok.Pos}}

	switch keyword {
	case "if", "elif", "when":
		stmt.Kind = map[string]StmtKind{"if": StmtIf, "elif": StmtElif, "when": StmtWhen}[keyword]
		if rest == "" {
			return nil, NewParseErrorf(tok.Pos, "'%s' requires a condition", keyword)
		}
		stmt.Expr = rest
	case "else", "endif", "choose", "otherwise", "endchoose", "endfor", "where", "endwhere", "set", "endset", "endtrim":
		stmt.Kind = map[string]StmtKind{
			"else": StmtElse, "endif": StmtEndIf, "choose": StmtChoose, "otherwise": StmtOtherwise,
			"endchoose": StmtEndChoose, "endfor": StmtEndFor, "where": StmtWhere, "endwhere": StmtEndWhere,
			"set": StmtSet, "endset": StmtEndSet, "endtrim": StmtEndTrim,
		}[keyword]
		if rest != "" {
			return nil, NewParseErrorf(tok.Pos, "unexpected text after '%s': %q", keyword, rest)
		}
	case "for":
		return parseForHead(tok, head)
	case "trim":
		stmt.Kind = StmtTrim
		opts, err := parseOptions(tok.Pos, rest)
		if err != nil {
			return nil, err
		}
		for k := range opts {
			switch k {
			case "prefix", "suffix", "prefixOverrides", "suffixOverrides":
			default:
				return nil, NewParseErrorf(tok.Pos, "unknown trim option %q", k)
			}
		}
		stmt.Options = opts
	case "include":
		m := includeRe.FindStringSubmatch(head)
		if m == nil {
			return nil, NewParseErrorf(tok.Pos, "invalid include, expected include \"fragment.id\": %q", text)
		}
		stmt.Kind = StmtInclude
		stmt.Name = m[1] + m[2]
	case "bind":
		m := bindRe.FindStringSubmatch(text)
		if m == nil {
			return nil, NewParseErrorf(tok.Pos, "invalid bind, expected bind name = expr: %q", text)
		}
		stmt.Kind = StmtBind
		stmt.Name = m[1]
		stmt.Expr = strings.TrimSpace(m[2])
	default:
		return nil, NewParseErrorf(tok.Pos, "unknown statement %q", keyword)
	}
	return stmt, nil
}

func parseForHead(tok Token, head string) (*StmtNode, error) {
	opts := make(map[string]string)
	for {
		loc := optionRe.FindStringSubmatchIndex(head)
		if loc == nil {
			break
		}
		name := head[loc[2]:loc[3]]
		if !forOptions[name] {
			break
		}
		opts[name] = unescape(head[loc[4]:loc[5]])
		head = head[:loc[0]]
	}
	m := forHeadRe.FindStringSubmatch(strings.TrimSpace(head))
	if m == nil {
		return nil, NewParseErrorf(tok.Pos, "invalid for loop, expected for [index,] item in expr: %q", tok.Value)
	}
	return &StmtNode{
		nodeBase:  nodeBase{pos: tok.Pos},
		Kind:      StmtFor,
		IndexName: m[1],
		VarName:   m[2],
		Expr:      strings.TrimSpace(m[3]),
		Options:   opts,
	}, nil
}

// parseOptions parses name="value" pairs; anything else is an error.
func parseOptions(pos Position, s string) (map[string]string, error) {
	opts := make(map[string]string)
	for _, m := range allOptRe.FindAllStringSubmatch(s, -1) {
		opts[m[1]] = unescape(m[2])
	}
	if leftover := strings.TrimSpace(allOptRe.ReplaceAllString(s, "")); leftover != "" {
		return nil, NewParseErrorf(pos, "unexpected text in options: %q", leftover)
	}
	return opts, nil
}

func parseBoolOption(stmt *StmtNode, name string) (bool, error) {
	v, ok := stmt.Options[name]
	if !ok {
		return false, nil
	}
	switch strings.ToLower(v) {
	case "true":
		return true, nil
	case "false", "":
		return false, nil
	}
	return false, NewParseErrorf(stmt.pos, "option %s must be \"true\" or \"false\", got %q", name, v)
}

// unescape resolves \n, \t, \r, \" and \\ inside option values.
func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	r := strings.NewReplacer(`\n`, "\n", `\t`, "\t", `\r`, "\r", `\"`, `"`, `\\`, `\`)
	return r.Replace(s)
}

// parseParam parses "path[, type=DBTYPE][, handler=NAME]".
func parseParam(tok Token) (*ParamNode, error) {
	parts := strings.Split(tok.Value, ",")
	n := &ParamNode{nodeBase: nodeBase{pos: tok.Pos}, Path: strings.TrimSpace(parts[0])}
	if _, err := reflection.Tokenize(n.Path); err != nil || n.Path == "" {
		return nil, NewParseErrorf(tok.Pos, "invalid parameter path %q", n.Path)
	}
	if !identRe.MatchString(reflection.Root(n.Path)) {
		return nil, NewParseErrorf(tok.Pos, "invalid parameter path %q", n.Path)
	}
	for _, opt := range parts[1:] {
		key, val, ok := strings.Cut(opt, "=")
		key, val = strings.TrimSpace(key), strings.TrimSpace(val)
		if !ok || val == "" {
			return nil, NewParseErrorf(tok.Pos, "invalid parameter option %q", strings.TrimSpace(opt))
		}
		switch key {
		case "type", "dbType", "jdbcType":
			t, known := core.ParseDBType(val)
			if !known {
				return nil, NewParseErrorf(tok.Pos, "unknown database type %q", val)
			}
			n.DBType = t
		case "handler", "typeHandler":
			n.Handler = val
		default:
			return nil, NewParseErrorf(tok.Pos, "unknown parameter option %q", key)
		}
	}
	return n, nil
}
