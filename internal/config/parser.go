package config

import (
	"fmt"
	"strconv"
	"strings"
)

// cgiExtensionWhitelist mirrors LocationConfig::addCgiExtension's hardcoded
// set in original_source/src/LocationConfig.cpp.
var cgiExtensionWhitelist = map[string]bool{
	".py": true, ".sh": true, ".php": true, ".rb": true, ".pl": true,
}

// Parser is a recursive-descent parser over the token stream produced by a
// Lexer, grounded on original_source/src/Parser.cpp and its more complete
// directive table in original_source/include/Parser.hpp.
type Parser struct {
	lex *Lexer
	cur Token
}

// NewParser tokenizes input via a fresh Lexer and primes the first token.
func NewParser(input string) *Parser {
	p := &Parser{lex: NewLexer(input)}
	p.advance()
	return p
}

func (p *Parser) advance() {
	p.cur = p.lex.NextToken()
}

func (p *Parser) expect(typ TokenType, what string) (Token, error) {
	if p.cur.Type == TokError {
		return Token{}, errAt(p.cur, "%s", p.cur.Value)
	}
	if p.cur.Type != typ {
		return Token{}, errAt(p.cur, "expected %s, got %q", what, p.cur.Value)
	}
	tok := p.cur
	p.advance()
	return tok, nil
}

func (p *Parser) collectValuesUntilSemicolon() ([]Token, error) {
	var values []Token
	for p.cur.Type != TokSemicolon {
		if p.cur.Type == TokEOF {
			return nil, errAt(p.cur, "unexpected EOF, expected ';'")
		}
		if p.cur.Type == TokError {
			return nil, errAt(p.cur, "%s", p.cur.Value)
		}
		values = append(values, p.cur)
		p.advance()
	}
	if _, err := p.expect(TokSemicolon, "';'"); err != nil {
		return nil, err
	}
	return values, nil
}

// Parse consumes the whole token stream and returns every server block in
// the file. A config with zero server blocks is rejected, as it is in
// original_source/src/Parser.cpp.
func (p *Parser) Parse() ([]ServerConfig, error) {
	var servers []ServerConfig
	for p.cur.Type != TokEOF {
		if p.cur.Type == TokError {
			return nil, errAt(p.cur, "%s", p.cur.Value)
		}
		if p.cur.Type != TokIdent || p.cur.Value != "server" {
			return nil, errAt(p.cur, "expected 'server' block, got %q", p.cur.Value)
		}
		server, err := p.parseServerBlock()
		if err != nil {
			return nil, err
		}
		servers = append(servers, server)
	}
	if len(servers) == 0 {
		return nil, &ConfigError{Line: 1, Col: 1, Message: "config must contain at least one server block"}
	}
	return servers, nil
}

func (p *Parser) parseServerBlock() (ServerConfig, error) {
	if _, err := p.expect(TokIdent, "'server'"); err != nil {
		return ServerConfig{}, err
	}
	if _, err := p.expect(TokLBrace, "'{' after server"); err != nil {
		return ServerConfig{}, err
	}

	server := ServerConfig{ErrorPages: map[int]string{}}
	seen := map[string]bool{}
	seenListen := map[string]bool{}
	seenNames := map[string]bool{}
	seenIndex := map[string]bool{}
	seenErrorCodes := map[int]bool{}
	seenLocationPaths := map[string]bool{}

	for p.cur.Type != TokRBrace {
		if p.cur.Type == TokEOF {
			return ServerConfig{}, errAt(p.cur, "unexpected EOF in server block")
		}
		if p.cur.Type == TokIdent && p.cur.Value == "location" {
			loc, err := p.parseLocationBlock()
			if err != nil {
				return ServerConfig{}, err
			}
			if seenLocationPaths[loc.Path] {
				return ServerConfig{}, errAt(p.cur, "duplicate location path: %s", loc.Path)
			}
			seenLocationPaths[loc.Path] = true
			server.Locations = append(server.Locations, loc)
			continue
		}
		if err := p.parseServerDirective(&server, seen, seenListen, seenNames, seenIndex, seenErrorCodes); err != nil {
			return ServerConfig{}, err
		}
	}

	if _, err := p.expect(TokRBrace, "'}' after server block"); err != nil {
		return ServerConfig{}, err
	}
	return server, nil
}

func (p *Parser) parseServerDirective(server *ServerConfig, seen, seenListen, seenNames, seenIndex map[string]bool, seenErrorCodes map[int]bool) error {
	name, err := p.expect(TokIdent, "server directive")
	if err != nil {
		return err
	}

	spec := findServerDirective(name.Value)
	if spec == nil {
		return errAt(name, "invalid server directive: %s", name.Value)
	}
	if spec.arity == arSingle && seen[name.Value] {
		return errAt(name, "duplicate directive: %s", name.Value)
	}
	seen[name.Value] = true

	values, err := p.collectValuesUntilSemicolon()
	if err != nil {
		return err
	}
	return applyServerDirective(server, name, values, seenListen, seenNames, seenIndex, seenErrorCodes)
}

func (p *Parser) parseLocationBlock() (LocationConfig, error) {
	if _, err := p.expect(TokIdent, "'location'"); err != nil {
		return LocationConfig{}, err
	}
	path, err := p.expect(TokIdent, "location path")
	if err != nil {
		return LocationConfig{}, err
	}
	if _, err := p.expect(TokLBrace, "'{' after location path"); err != nil {
		return LocationConfig{}, err
	}

	loc := LocationConfig{Path: path.Value}
	seen := map[string]bool{}
	seenIndex := map[string]bool{}
	seenMethods := map[string]bool{}
	seenCgiPass := map[string]bool{}
	seenCgiExt := map[string]bool{}

	for p.cur.Type != TokRBrace {
		if p.cur.Type == TokEOF {
			return LocationConfig{}, errAt(p.cur, "unexpected EOF in location block")
		}
		if err := p.parseLocationDirective(&loc, seen, seenIndex, seenMethods, seenCgiPass, seenCgiExt); err != nil {
			return LocationConfig{}, err
		}
	}

	if _, err := p.expect(TokRBrace, "'}' after location block"); err != nil {
		return LocationConfig{}, err
	}
	return loc, nil
}

func (p *Parser) parseLocationDirective(loc *LocationConfig, seen, seenIndex, seenMethods, seenCgiPass, seenCgiExt map[string]bool) error {
	name, err := p.expect(TokIdent, "location directive")
	if err != nil {
		return err
	}

	spec := findLocationDirective(name.Value)
	if spec == nil {
		return errAt(name, "invalid location directive: %s", name.Value)
	}
	if spec.arity == arSingle && seen[name.Value] {
		return errAt(name, "duplicate directive: %s", name.Value)
	}
	seen[name.Value] = true

	values, err := p.collectValuesUntilSemicolon()
	if err != nil {
		return err
	}
	return applyLocationDirective(loc, name, values, seenIndex, seenMethods, seenCgiPass, seenCgiExt)
}

func toInt(t Token) (int, error) {
	v, err := strconv.Atoi(t.Value)
	if err != nil {
		return 0, errAt(t, "invalid integer: %s", t.Value)
	}
	return v, nil
}

// parseSize parses a byte count with an optional K/M/G suffix, grounded on
// original_source/src/Parser.cpp's parseSize.
func parseSize(t Token) (int64, error) {
	s := t.Value
	if s == "" {
		return 0, errAt(t, "invalid size: %s", s)
	}

	unit := int64(1)
	digits := s
	switch s[len(s)-1] {
	case 'K':
		unit, digits = 1024, s[:len(s)-1]
	case 'M':
		unit, digits = 1024*1024, s[:len(s)-1]
	case 'G':
		unit, digits = 1024*1024*1024, s[:len(s)-1]
	}

	base, err := strconv.ParseInt(digits, 10, 64)
	if err != nil || base < 0 {
		return 0, errAt(t, "invalid size: %s", s)
	}
	return base * unit, nil
}

// parseListenAddress accepts either a bare port ("8080") or the canonical
// "interface:port" form (spec.md §6.2, §9), replacing the obsolete 'host'
// directive.
func parseListenAddress(t Token) (ListenEndpoint, error) {
	value := t.Value
	idx := strings.LastIndexByte(value, ':')
	iface, portStr := "", value
	if idx >= 0 {
		iface, portStr = value[:idx], value[idx+1:]
		if iface != "" && !isValidIPv4(iface) {
			return ListenEndpoint{}, errAt(t, "invalid listen interface: %s", iface)
		}
	}

	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return ListenEndpoint{}, errAt(t, "invalid listen port: %s", value)
	}
	return ListenEndpoint{Interface: iface, Port: port}, nil
}

func isValidIPv4(s string) bool {
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return false
	}
	for _, part := range parts {
		if part == "" || len(part) > 3 {
			return false
		}
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 || n > 255 {
			return false
		}
	}
	return true
}

func applyServerDirective(server *ServerConfig, name Token, values []Token, seenListen, seenNames, seenIndex map[string]bool, seenErrorCodes map[int]bool) error {
	switch name.Value {
	case "listen":
		if len(values) != 1 {
			return errAt(name, "listen expects exactly one argument")
		}
		addr, err := parseListenAddress(values[0])
		if err != nil {
			return err
		}
		key := fmt.Sprintf("%s:%d", addr.Interface, addr.Port)
		if seenListen[key] {
			return errAt(values[0], "duplicate listen address: %s", values[0].Value)
		}
		seenListen[key] = true
		server.Listen = append(server.Listen, addr)
		return nil

	case "server_name":
		if len(values) == 0 {
			return errAt(name, "server_name expects at least one value")
		}
		for _, v := range values {
			if seenNames[v.Value] {
				return errAt(v, "duplicate server_name: %s", v.Value)
			}
			seenNames[v.Value] = true
			server.ServerNames = append(server.ServerNames, v.Value)
		}
		return nil

	case "root":
		if len(values) != 1 {
			return errAt(name, "root expects exactly one argument")
		}
		server.Root = values[0].Value
		server.RootSet = true
		return nil

	case "index":
		if len(values) == 0 {
			return errAt(name, "index expects at least one value")
		}
		for _, v := range values {
			if seenIndex[v.Value] {
				return errAt(v, "duplicate index file: %s", v.Value)
			}
			seenIndex[v.Value] = true
			server.Index = append(server.Index, v.Value)
		}
		server.IndexSet = true
		return nil

	case "autoindex":
		if len(values) != 1 {
			return errAt(name, "autoindex expects exactly one argument")
		}
		on, err := parseOnOff(values[0])
		if err != nil {
			return err
		}
		server.Autoindex = on
		server.AutoindexSet = true
		return nil

	case "client_max_body_size":
		if len(values) != 1 {
			return errAt(name, "client_max_body_size expects exactly one value")
		}
		size, err := parseSize(values[0])
		if err != nil {
			return err
		}
		if size > maxServerBodySize {
			return errAt(values[0], "client_max_body_size cannot exceed 1G")
		}
		server.ClientMaxBodySize = size
		server.ClientMaxBodySizeSet = true
		return nil

	case "error_page":
		if len(values) != 2 {
			return errAt(name, "error_page expects 2 arguments")
		}
		code, err := toInt(values[0])
		if err != nil {
			return err
		}
		if seenErrorCodes[code] {
			return errAt(values[0], "duplicate error_page code: %d", code)
		}
		seenErrorCodes[code] = true
		server.ErrorPages[code] = values[1].Value
		return nil
	}

	return errAt(name, "unhandled server directive: %s", name.Value)
}

func applyLocationDirective(loc *LocationConfig, name Token, values []Token, seenIndex, seenMethods, seenCgiPass, seenCgiExt map[string]bool) error {
	switch name.Value {
	case "root":
		if len(values) != 1 {
			return errAt(name, "root expects exactly one argument")
		}
		loc.Root = values[0].Value
		loc.RootSet = true
		return nil

	case "autoindex":
		if len(values) != 1 {
			return errAt(name, "autoindex expects exactly one argument")
		}
		on, err := parseOnOff(values[0])
		if err != nil {
			return err
		}
		loc.Autoindex = on
		loc.AutoindexSet = true
		return nil

	case "client_max_body_size":
		if len(values) != 1 {
			return errAt(name, "client_max_body_size expects exactly one value")
		}
		size, err := parseSize(values[0])
		if err != nil {
			return err
		}
		if size > maxLocationBodySize {
			return errAt(values[0], "client_max_body_size cannot exceed 100M")
		}
		loc.ClientMaxBodySize = size
		loc.ClientMaxBodySizeSet = true
		return nil

	case "cgi_pass":
		if len(values) != 1 {
			return errAt(name, "cgi_pass expects exactly one argument")
		}
		if seenCgiPass[values[0].Value] {
			return errAt(values[0], "duplicate cgi_pass: %s", values[0].Value)
		}
		seenCgiPass[values[0].Value] = true
		loc.CGIPass = append(loc.CGIPass, values[0].Value)
		return nil

	case "cgi_extension":
		if len(values) == 0 {
			return errAt(name, "cgi_extension expects at least one value")
		}
		for _, v := range values {
			if seenCgiExt[v.Value] {
				return errAt(v, "duplicate cgi_extension: %s", v.Value)
			}
			if !cgiExtensionWhitelist[v.Value] {
				return errAt(v, "unsupported cgi_extension: %s", v.Value)
			}
			seenCgiExt[v.Value] = true
			loc.CGIExtensions = append(loc.CGIExtensions, v.Value)
		}
		return nil

	case "return":
		if len(values) != 2 {
			return errAt(name, "return expects return code and redirect target")
		}
		code, err := toInt(values[0])
		if err != nil {
			return err
		}
		loc.HasReturn = true
		loc.ReturnCode = code
		loc.ReturnValue = values[1].Value
		return nil

	case "index":
		if len(values) == 0 {
			return errAt(name, "index expects at least one value")
		}
		for _, v := range values {
			if seenIndex[v.Value] {
				return errAt(v, "duplicate index file: %s", v.Value)
			}
			seenIndex[v.Value] = true
			loc.Index = append(loc.Index, v.Value)
		}
		loc.IndexSet = true
		return nil

	case "upload_store":
		if len(values) != 1 {
			return errAt(name, "upload_store expects exactly one value")
		}
		loc.UploadStore = values[0].Value
		return nil

	case "allowed_methods":
		if len(values) == 0 {
			return errAt(name, "allowed_methods expects at least one value")
		}
		for _, v := range values {
			if seenMethods[v.Value] {
				return errAt(v, "duplicate allowed method: %s", v.Value)
			}
			seenMethods[v.Value] = true
			loc.AllowedMethods = append(loc.AllowedMethods, v.Value)
		}
		return nil
	}

	return errAt(name, "unknown location directive: %s", name.Value)
}

func parseOnOff(t Token) (bool, error) {
	switch t.Value {
	case "on":
		return true, nil
	case "off":
		return false, nil
	default:
		return false, errAt(t, "autoindex must be 'on' or 'off', got %q", t.Value)
	}
}
