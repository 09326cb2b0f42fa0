package navigation

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ZoloAi/zolo-zcli-sub008/internal/session"
)

// ErrPermissionDenied is returned by Resolve when a zLink expression's
// permission block does not match the caller's auth claims.
var ErrPermissionDenied = errors.New("navigation: zLink permission denied")

// ParseZLinkExpression splits a `zLink("path", {perm: value, ...})` literal
// into its target path and required-permission map, grounded on
// linking.py's parse_zLink_expression. The permission block is optional; a
// bare `zLink("path")` parses to an empty map. This is the "light expression
// evaluator" spec.md §4.2 calls for — not a full YAML or JSON parse, since
// the original format is neither.
func ParseZLinkExpression(expr string) (path string, requiredPerms map[string]interface{}, err error) {
	trimmed := strings.TrimSpace(expr)
	if !strings.HasPrefix(trimmed, "zLink(") || !strings.HasSuffix(trimmed, ")") {
		return "", nil, fmt.Errorf("navigation: not a zLink expression: %q", expr)
	}
	inner := strings.TrimSpace(trimmed[len("zLink(") : len(trimmed)-1])

	permsIdx := strings.LastIndex(inner, ", {")
	if permsIdx < 0 {
		path, err = parseStringLiteral(inner)
		return path, map[string]interface{}{}, err
	}

	pathPart := inner[:permsIdx]
	permsPart := strings.TrimSpace(inner[permsIdx+2:]) // keep leading '{'
	if !strings.HasSuffix(permsPart, "}") {
		return "", nil, fmt.Errorf("navigation: unterminated permission block in %q", expr)
	}

	path, err = parseStringLiteral(pathPart)
	if err != nil {
		return "", nil, err
	}

	perms, err := parsePermissionDict(permsPart)
	if err != nil {
		return "", nil, err
	}
	return path, perms, nil
}

func parseStringLiteral(s string) (string, error) {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1], nil
	}
	return s, nil
}

// parsePermissionDict parses a `{key: value, key2: "value2"}` literal into a
// map. Values are strings (quoted or bare), booleans, or numbers.
func parsePermissionDict(s string) (map[string]interface{}, error) {
	body := strings.TrimSpace(s)
	body = strings.TrimPrefix(body, "{")
	body = strings.TrimSuffix(body, "}")
	body = strings.TrimSpace(body)

	out := map[string]interface{}{}
	if body == "" {
		return out, nil
	}

	for _, pair := range splitTopLevelCommas(body) {
		kv := strings.SplitN(pair, ":", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("navigation: malformed permission entry %q", pair)
		}
		key := strings.TrimSpace(kv[0])
		key = strings.Trim(key, `"'`)
		val := strings.TrimSpace(kv[1])
		out[key] = parseScalar(val)
	}
	return out, nil
}

func splitTopLevelCommas(s string) []string {
	var parts []string
	depth := 0
	start := 0
	for i, r := range s {
		switch r {
		case '{', '[':
			depth++
		case '}', ']':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	parts = append(parts, s[start:])
	return parts
}

func parseScalar(s string) interface{} {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	switch s {
	case "true":
		return true
	case "false":
		return false
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return s
}

// ResolveZPath decomposes a dotted zLink target path into the zPath triple
// the session should adopt, grounded on linking.py's handle: the last
// segment is the block name; of the remaining segments, the trailing two
// form the filename and everything before that the folder path.
func ResolveZPath(zLinkPath string) session.ZPath {
	segments := strings.Split(zLinkPath, ".")
	blockName := segments[len(segments)-1]
	pathToFile := segments[:len(segments)-1]

	if len(pathToFile) >= 2 {
		folder := strings.Join(pathToFile[:len(pathToFile)-2], ".")
		file := strings.Join(pathToFile[len(pathToFile)-2:], ".")
		return session.ZPath{Folder: folder, File: file, Block: blockName}
	}
	return session.ZPath{Folder: "", File: strings.Join(pathToFile, "."), Block: blockName}
}

// ScopeToZPath inverts a breadcrumb scope string (the "folder.file.block"
// form session paths render to, spec.md §3) back into a zPath triple. It
// mirrors ResolveZPath's split: the last segment is the block, the two
// before it form the file, and everything earlier is the folder. A zBack
// POP hands back a scope string, not a zLink target, so a scope of fewer
// than three dotted segments reports ok=false and the caller logs and
// skips the rewrite instead of guessing.
func ScopeToZPath(scope string) (zp session.ZPath, ok bool) {
	segments := strings.Split(scope, ".")
	if len(segments) < 3 {
		return session.ZPath{}, false
	}
	block := segments[len(segments)-1]
	file := strings.Join(segments[len(segments)-3:len(segments)-1], ".")
	folder := strings.Join(segments[:len(segments)-3], ".")
	return session.ZPath{Folder: folder, File: file, Block: block}, true
}

// Resolve parses a zLink expression, checks its permission block against
// auth, and returns the zPath the caller should move the session to. The
// caller is responsible for loading the target file, updating the session
// and breadcrumbs, and resuming loop execution on the resolved block.
func Resolve(expr string, auth session.Auth) (session.ZPath, error) {
	path, perms, err := ParseZLinkExpression(expr)
	if err != nil {
		return session.ZPath{}, err
	}
	if !CheckPermissions(perms, auth) {
		return session.ZPath{}, ErrPermissionDenied
	}
	return ResolveZPath(path), nil
}

// CheckPermissions reports whether auth satisfies every required[key] ==
// claim equality, per linking.py's check_zLink_permissions: an empty
// requirement map always passes; any mismatch (including a missing claim)
// denies.
func CheckPermissions(required map[string]interface{}, auth session.Auth) bool {
	if len(required) == 0 {
		return true
	}
	for key, expected := range required {
		actual, ok := auth.Claims[key]
		if !ok || fmt.Sprintf("%v", actual) != fmt.Sprintf("%v", expected) {
			return false
		}
	}
	return true
}
