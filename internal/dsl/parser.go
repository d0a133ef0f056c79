// Package dsl implements the correction language surface: a
// line-oriented parser producing typed Command values, a structural
// signature for idempotent dedup, and an in-memory applier that
// detects AliasOverlap/PrimaryConflict semantic conflicts.
package dsl

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/canopyledger/census/internal/censuserr"
	"github.com/canopyledger/census/internal/types"
)

var uuidPattern = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

const dateLayout = "2006-01-02"

// Parse reads DSL text (one command per line; blank lines and #
// comments allowed) and returns the ordered command stream. path is
// used only for error location context.
func Parse(path, text string) ([]types.Command, error) {
	var commands []types.Command
	lines := strings.Split(text, "\n")
	for i, raw := range lines {
		lineNo := i + 1
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		cmd, err := parseLine(path, lineNo, raw, line)
		if err != nil {
			return nil, err
		}
		commands = append(commands, cmd)
	}
	return commands, nil
}

func parseLine(path string, lineNo int, raw, line string) (types.Command, error) {
	tokens, err := tokenize(line)
	if err != nil {
		return types.Command{}, censuserr.DSLParsef(path, lineNo, "%v (in %q)", err, raw)
	}
	if len(tokens) == 0 {
		return types.Command{}, censuserr.DSLParsef(path, lineNo, "empty command")
	}

	p := &lineParser{path: path, lineNo: lineNo, raw: raw, tokens: tokens}
	switch strings.ToUpper(tokens[0]) {
	case "ALIAS":
		return p.parseAlias()
	case "UPDATE":
		return p.parseUpdate()
	case "SPLIT":
		return p.parseSplit()
	default:
		return types.Command{}, censuserr.DSLParsef(path, lineNo, "unknown command %q (in %q)", tokens[0], raw)
	}
}

type lineParser struct {
	path   string
	lineNo int
	raw    string
	tokens []string
	pos    int
}

func (p *lineParser) errf(format string, args ...any) error {
	return censuserr.DSLParsef(p.path, p.lineNo, format+" (in %q)", append(args, p.raw)...)
}

func (p *lineParser) next() (string, bool) {
	if p.pos >= len(p.tokens) {
		return "", false
	}
	tok := p.tokens[p.pos]
	p.pos++
	return tok, true
}

func (p *lineParser) peek() (string, bool) {
	if p.pos >= len(p.tokens) {
		return "", false
	}
	return p.tokens[p.pos], true
}

func (p *lineParser) expect(word string) error {
	tok, ok := p.next()
	if !ok || !strings.EqualFold(tok, word) {
		return p.errf("expected %q, got %q", word, tok)
	}
	return nil
}

// parseAlias handles: ALIAS site/plot/tag TO <tree_ref> [PRIMARY]
// [EFFECTIVE yyyy-mm-dd] [NOTE "..."]
func (p *lineParser) parseAlias() (types.Command, error) {
	p.next() // ALIAS
	targetTok, ok := p.next()
	if !ok {
		return types.Command{}, p.errf("missing alias target tag")
	}
	target, err := parseTagID(targetTok)
	if err != nil {
		return types.Command{}, p.errf("invalid tag %q: %v", targetTok, err)
	}
	if err := p.expect("TO"); err != nil {
		return types.Command{}, err
	}
	treeTok, ok := p.next()
	if !ok {
		return types.Command{}, p.errf("missing tree reference")
	}
	tree, err := parseTreeRef(treeTok)
	if err != nil {
		return types.Command{}, p.errf("invalid tree reference %q: %v", treeTok, err)
	}

	primary, effective, note, err := p.parseTrailingModifiers()
	if err != nil {
		return types.Command{}, err
	}

	return types.Command{
		Kind: types.CommandAlias,
		Line: p.lineNo,
		Alias: &types.AliasCommand{
			Target:        target,
			Tree:          tree,
			Primary:       primary,
			EffectiveDate: effective,
			Note:          note,
		},
	}, nil
}

// parseUpdate handles: UPDATE <tree_ref> SET key=value(,key=value)*
// [EFFECTIVE ...] [NOTE "..."]
func (p *lineParser) parseUpdate() (types.Command, error) {
	p.next() // UPDATE
	treeTok, ok := p.next()
	if !ok {
		return types.Command{}, p.errf("missing tree reference")
	}
	tree, err := parseTreeRef(treeTok)
	if err != nil {
		return types.Command{}, p.errf("invalid tree reference %q: %v", treeTok, err)
	}
	if err := p.expect("SET"); err != nil {
		return types.Command{}, err
	}
	assignTok, ok := p.next()
	if !ok {
		return types.Command{}, p.errf("missing assignment list")
	}
	assignments, err := parseAssignments(assignTok)
	if err != nil {
		return types.Command{}, p.errf("invalid assignments %q: %v", assignTok, err)
	}

	_, effective, note, err := p.parseTrailingModifiers()
	if err != nil {
		return types.Command{}, err
	}

	return types.Command{
		Kind: types.CommandUpdate,
		Line: p.lineNo,
		Update: &types.UpdateCommand{
			Tree:          tree,
			Assignments:   assignments,
			EffectiveDate: effective,
			Note:          note,
		},
	}, nil
}

// parseSplit handles: SPLIT <tree_ref> INTO site/plot/tag [PRIMARY]
// [EFFECTIVE ...] [SELECT ... ] [NOTE "..."]
func (p *lineParser) parseSplit() (types.Command, error) {
	p.next() // SPLIT
	sourceTok, ok := p.next()
	if !ok {
		return types.Command{}, p.errf("missing source tree reference")
	}
	source, err := parseTreeRef(sourceTok)
	if err != nil {
		return types.Command{}, p.errf("invalid tree reference %q: %v", sourceTok, err)
	}
	if err := p.expect("INTO"); err != nil {
		return types.Command{}, err
	}
	targetTok, ok := p.next()
	if !ok {
		return types.Command{}, p.errf("missing split target tag")
	}
	target, err := parseTagID(targetTok)
	if err != nil {
		return types.Command{}, p.errf("invalid tag %q: %v", targetTok, err)
	}

	var primary bool
	var effective *time.Time
	var selector *types.Selector
	var note string

	for {
		tok, ok := p.peek()
		if !ok {
			break
		}
		switch strings.ToUpper(tok) {
		case "PRIMARY":
			p.next()
			primary = true
		case "EFFECTIVE":
			p.next()
			dtok, ok := p.next()
			if !ok {
				return types.Command{}, p.errf("missing EFFECTIVE date")
			}
			d, err := time.Parse(dateLayout, dtok)
			if err != nil {
				return types.Command{}, p.errf("invalid EFFECTIVE date %q", dtok)
			}
			effective = &d
		case "SELECT":
			p.next()
			sel, err := p.parseSelectClause()
			if err != nil {
				return types.Command{}, err
			}
			selector = sel
		case "NOTE":
			p.next()
			ntok, ok := p.next()
			if !ok {
				return types.Command{}, p.errf("missing NOTE text")
			}
			note = ntok
		default:
			return types.Command{}, p.errf("unexpected token %q", tok)
		}
	}

	return types.Command{
		Kind: types.CommandSplit,
		Line: p.lineNo,
		Split: &types.SplitCommand{
			Source:        source,
			Target:        target,
			Primary:       primary,
			EffectiveDate: effective,
			Selector:      selector,
			Note:          note,
		},
	}, nil
}

// parseTrailingModifiers consumes the common [PRIMARY] [EFFECTIVE d]
// [NOTE "..."] trailer shared by ALIAS and UPDATE.
func (p *lineParser) parseTrailingModifiers() (primary bool, effective *time.Time, note string, err error) {
	for {
		tok, ok := p.peek()
		if !ok {
			return primary, effective, note, nil
		}
		switch strings.ToUpper(tok) {
		case "PRIMARY":
			p.next()
			primary = true
		case "EFFECTIVE":
			p.next()
			dtok, ok := p.next()
			if !ok {
				return false, nil, "", p.errf("missing EFFECTIVE date")
			}
			d, perr := time.Parse(dateLayout, dtok)
			if perr != nil {
				return false, nil, "", p.errf("invalid EFFECTIVE date %q", dtok)
			}
			effective = &d
		case "NOTE":
			p.next()
			ntok, ok := p.next()
			if !ok {
				return false, nil, "", p.errf("missing NOTE text")
			}
			note = ntok
		default:
			return false, nil, "", p.errf("unexpected token %q", tok)
		}
	}
}

func (p *lineParser) parseSelectClause() (*types.Selector, error) {
	modeTok, ok := p.next()
	if !ok {
		return nil, p.errf("missing SELECT mode")
	}
	sel := &types.Selector{}
	switch strings.ToUpper(modeTok) {
	case "ALL":
		sel.Strategy = types.SelectorAll
	case "LARGEST":
		sel.Strategy = types.SelectorLargest
	case "SMALLEST":
		sel.Strategy = types.SelectorSmallest
	case "RANKS":
		sel.Strategy = types.SelectorRanks
		listTok, ok := p.next()
		if !ok {
			return nil, p.errf("missing RANKS list")
		}
		ranks, err := parseRankList(listTok)
		if err != nil {
			return nil, p.errf("invalid RANKS list %q: %v", listTok, err)
		}
		if len(ranks) == 0 {
			return nil, p.errf("RANKS selector requires at least one rank")
		}
		sel.Ranks = ranks
	default:
		return nil, p.errf("unknown SELECT mode %q", modeTok)
	}

	tok, ok := p.peek()
	if !ok {
		return sel, nil
	}
	switch strings.ToUpper(tok) {
	case "BEFORE":
		p.next()
		dtok, ok := p.next()
		if !ok {
			return nil, p.errf("missing BEFORE date")
		}
		d, err := time.Parse(dateLayout, dtok)
		if err != nil {
			return nil, p.errf("invalid BEFORE date %q", dtok)
		}
		sel.DateFilter = types.SelectorDateFilter{Kind: types.DateFilterBefore, Start: d}
	case "AFTER":
		p.next()
		dtok, ok := p.next()
		if !ok {
			return nil, p.errf("missing AFTER date")
		}
		d, err := time.Parse(dateLayout, dtok)
		if err != nil {
			return nil, p.errf("invalid AFTER date %q", dtok)
		}
		sel.DateFilter = types.SelectorDateFilter{Kind: types.DateFilterAfter, Start: d}
	case "BETWEEN":
		p.next()
		startTok, ok := p.next()
		if !ok {
			return nil, p.errf("missing BETWEEN start date")
		}
		start, err := time.Parse(dateLayout, startTok)
		if err != nil {
			return nil, p.errf("invalid BETWEEN start date %q", startTok)
		}
		if err := p.expect("AND"); err != nil {
			return nil, err
		}
		endTok, ok := p.next()
		if !ok {
			return nil, p.errf("missing BETWEEN end date")
		}
		end, err := time.Parse(dateLayout, endTok)
		if err != nil {
			return nil, p.errf("invalid BETWEEN end date %q", endTok)
		}
		sel.DateFilter = types.SelectorDateFilter{Kind: types.DateFilterBetween, Start: start, End: end}
	}
	return sel, nil
}

func parseRankList(tok string) ([]int, error) {
	parts := strings.Split(tok, ",")
	ranks := make([]int, 0, len(parts))
	for _, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		ranks = append(ranks, n)
	}
	return ranks, nil
}

func parseAssignments(tok string) (map[string]string, error) {
	allowed := map[string]bool{"genus": true, "species": true, "code": true, "site": true, "plot": true}
	assignments := map[string]string{}
	for _, pair := range strings.Split(tok, ",") {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("malformed assignment %q", pair)
		}
		key := strings.TrimSpace(kv[0])
		if !allowed[key] {
			return nil, fmt.Errorf("unrecognised update field %q", key)
		}
		assignments[key] = strings.TrimSpace(kv[1])
	}
	if len(assignments) == 0 {
		return nil, fmt.Errorf("at least one assignment required")
	}
	return assignments, nil
}

// parseTagID parses a bare site/plot/tag triple, with no UUID and no
// @-date suffix permitted.
func parseTagID(tok string) (types.TagRef, error) {
	parts := strings.Split(tok, "/")
	if len(parts) != 3 {
		return types.TagRef{}, fmt.Errorf("expected site/plot/tag")
	}
	for _, p := range parts {
		if p == "" || strings.Contains(p, "@") {
			return types.TagRef{}, fmt.Errorf("expected site/plot/tag")
		}
	}
	return types.TagRef{Site: parts[0], Plot: parts[1], Tag: parts[2]}, nil
}

// parseTreeRef parses a <tree_ref>: a UUID, or site/plot/tag[@yyyy-mm-dd].
func parseTreeRef(tok string) (types.TreeRef, error) {
	if uuidPattern.MatchString(tok) {
		return types.NewTreeRefByUUID(tok), nil
	}

	tagPart := tok
	var at *time.Time
	if idx := strings.Index(tok, "@"); idx >= 0 {
		tagPart = tok[:idx]
		dateStr := tok[idx+1:]
		d, err := time.Parse(dateLayout, dateStr)
		if err != nil {
			return types.TreeRef{}, fmt.Errorf("invalid @-date %q", dateStr)
		}
		at = &d
	}
	tag, err := parseTagID(tagPart)
	if err != nil {
		return types.TreeRef{}, err
	}
	tag.At = at
	return types.NewTreeRefByTag(tag), nil
}

// tokenize splits a line on whitespace, keeping a double-quoted
// NOTE "..." argument as a single token with its quotes stripped.
func tokenize(line string) ([]string, error) {
	var tokens []string
	var b strings.Builder
	inQuotes := false
	flush := func() {
		if b.Len() > 0 {
			tokens = append(tokens, b.String())
			b.Reset()
		}
	}
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case c == '"':
			if inQuotes {
				tokens = append(tokens, b.String())
				b.Reset()
				inQuotes = false
			} else {
				flush()
				inQuotes = true
			}
		case c == ' ' || c == '\t':
			if inQuotes {
				b.WriteByte(c)
			} else {
				flush()
			}
		default:
			b.WriteByte(c)
		}
	}
	if inQuotes {
		return nil, fmt.Errorf("unterminated quoted string")
	}
	flush()
	return tokens, nil
}
