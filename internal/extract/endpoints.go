package extract

import (
	"bufio"
	"bytes"
	"regexp"
	"strconv"
	"strings"

	"github.com/standardbeagle/findall/internal/types"
)

// endpointExtensions are the files scanned for route registrations.
var endpointExtensions = map[string]bool{
	".cs": true, ".java": true, ".kt": true,
	".js": true, ".jsx": true, ".mjs": true, ".cjs": true,
	".ts": true, ".tsx": true, ".mts": true, ".cts": true,
	".py": true, ".go": true, ".php": true,
}

var (
	// [HttpGet("users/{id}")], [HttpPost]
	aspNetVerbRe = regexp.MustCompile(`\[Http(Get|Post|Put|Delete|Patch|Head|Options)(?:\(\s*(?:template:\s*)?"([^"]*)"[^)]*\))?\]`)
	// [Route("api/[controller]")] ahead of a controller class
	aspNetRouteRe = regexp.MustCompile(`\[Route\(\s*"([^"]*)"\s*\)\]`)
	classNameRe   = regexp.MustCompile(`\bclass\s+([A-Za-z_]\w*)`)

	// @GetMapping("/users/{id}"), @RequestMapping(value = "/api", method = RequestMethod.POST)
	springMappingRe = regexp.MustCompile(`@(Get|Post|Put|Delete|Patch|Request)Mapping\b(?:\(\s*(?:(?:value|path)\s*=\s*)?\{?\s*"([^"]*)"([^)]*)\))?`)
	springMethodRe  = regexp.MustCompile(`RequestMethod\.([A-Z]+)`)

	// app.get('/users/:id', ...), router.post(`/x`, ...), @app.get("/x") (FastAPI)
	callVerbRe = regexp.MustCompile(`\b(?:app|router|server|api|routes|r|e|g|mux)\.(get|post|put|delete|patch|head|options|GET|POST|PUT|DELETE|PATCH|HEAD|OPTIONS|Get|Post|Put|Delete|Patch|Head|Options)\(\s*['"` + "`" + `]([^'"` + "`" + `]+)['"` + "`" + `]`)

	// r.HandleFunc("/users/{id}", h).Methods("GET"), http.Handle("GET /x", h)
	handleFuncRe  = regexp.MustCompile(`\.Handle(?:Func)?\(\s*"([^"]+)"`)
	gorillaVerbRe = regexp.MustCompile(`\.Methods\(\s*"([A-Za-z]+)"`)

	// @app.route("/users/<int:id>", methods=["POST"])
	flaskRouteRe   = regexp.MustCompile(`@\w+\.route\(\s*['"]([^'"]+)['"]([^)]*)\)`)
	flaskMethodsRe = regexp.MustCompile(`methods\s*=\s*\[\s*['"](\w+)['"]`)

	expressParamRe    = regexp.MustCompile(`(^|/):([A-Za-z_]\w*)`)
	constraintParamRe = regexp.MustCompile(`\{([A-Za-z_]\w*)[:=?][^}]*\}`)
	flaskParamRe      = regexp.MustCompile(`<(?:[A-Za-z_]\w*:)?([A-Za-z_]\w*)>`)
)

// extractEndpoints recognizes route registrations line by line and
// returns them as endpoint items named "[VERB] template".
func extractEndpoints(path string, content []byte) []types.SearchableItem {
	var items []types.SearchableItem
	seen := make(map[string]bool)

	var pendingPrefix, classPrefix, className string
	add := func(line, col int, verb, template, container, framework string) {
		name := "[" + strings.ToUpper(verb) + "] " + normalizeTemplate(template)
		key := name + "@" + strconv.Itoa(line)
		if seen[key] {
			return
		}
		seen[key] = true
		item := types.SearchableItem{
			ID:            types.SymbolItemID(types.ItemEndpoint, path, name, line, col),
			Name:          name,
			Type:          types.ItemEndpoint,
			FilePath:      path,
			Line:          line,
			Column:        col,
			ContainerName: container,
			Detail:        framework,
		}
		if container != "" {
			item.FullName = container + "." + name
		}
		items = append(items, item)
	}

	scanner := bufio.NewScanner(bytes.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()

		// Controller-level prefixes apply to the class that follows.
		if m := aspNetRouteRe.FindStringSubmatch(line); m != nil && !aspNetVerbRe.MatchString(line) {
			pendingPrefix = m[1]
		}
		if m := springMappingRe.FindStringSubmatch(line); m != nil && m[1] == "Request" && !strings.Contains(m[3], "RequestMethod.") {
			pendingPrefix = m[2]
			continue
		}
		if m := classNameRe.FindStringSubmatch(line); m != nil {
			className = m[1]
			classPrefix = strings.ReplaceAll(pendingPrefix, "[controller]", strings.TrimSuffix(className, "Controller"))
			pendingPrefix = ""
		}

		for _, m := range aspNetVerbRe.FindAllStringSubmatchIndex(line, -1) {
			verb := line[m[2]:m[3]]
			template := ""
			if m[4] >= 0 {
				template = line[m[4]:m[5]]
			}
			if !strings.HasPrefix(template, "/") && !strings.HasPrefix(template, "~") {
				template = joinRoute(classPrefix, template)
			}
			add(lineNo, m[0]+1, verb, strings.TrimPrefix(template, "~"), className, "aspnet")
		}

		for _, m := range springMappingRe.FindAllStringSubmatchIndex(line, -1) {
			kind := line[m[2]:m[3]]
			template := ""
			if m[4] >= 0 {
				template = line[m[4]:m[5]]
			}
			verb := kind
			if kind == "Request" {
				vm := springMethodRe.FindStringSubmatch(line)
				if vm == nil {
					continue
				}
				verb = vm[1]
			}
			add(lineNo, m[0]+1, verb, joinRoute(classPrefix, template), className, "spring")
		}

		for _, m := range callVerbRe.FindAllStringSubmatchIndex(line, -1) {
			template := line[m[4]:m[5]]
			if !strings.HasPrefix(template, "/") {
				continue
			}
			add(lineNo, m[0]+1, line[m[2]:m[3]], template, "", "router")
		}

		for _, m := range handleFuncRe.FindAllStringSubmatchIndex(line, -1) {
			template := line[m[2]:m[3]]
			verb := "ANY"
			if method, rest, ok := strings.Cut(template, " "); ok && isHTTPVerb(method) {
				verb, template = method, strings.TrimSpace(rest)
			} else if vm := gorillaVerbRe.FindStringSubmatch(line[m[1]:]); vm != nil {
				verb = vm[1]
			}
			if !strings.HasPrefix(template, "/") {
				continue
			}
			add(lineNo, m[0]+1, verb, template, "", "net/http")
		}

		for _, m := range flaskRouteRe.FindAllStringSubmatchIndex(line, -1) {
			verb := "GET"
			if vm := flaskMethodsRe.FindStringSubmatch(line[m[4]:m[5]]); vm != nil {
				verb = vm[1]
			}
			add(lineNo, m[0]+1, verb, line[m[2]:m[3]], "", "flask")
		}
	}
	return items
}

func isHTTPVerb(s string) bool {
	switch s {
	case "GET", "POST", "PUT", "DELETE", "PATCH", "HEAD", "OPTIONS":
		return true
	}
	return false
}

func joinRoute(prefix, template string) string {
	prefix = strings.Trim(prefix, "/")
	template = strings.Trim(template, "/")
	switch {
	case prefix == "":
		return template
	case template == "":
		return prefix
	}
	return prefix + "/" + template
}

// normalizeTemplate rewrites framework parameter syntax (":id",
// "<int:id>", "{id:int}") to "{id}" and strips surrounding slashes.
func normalizeTemplate(t string) string {
	t = expressParamRe.ReplaceAllString(t, "$1{$2}")
	t = constraintParamRe.ReplaceAllString(t, "{$1}")
	t = flaskParamRe.ReplaceAllString(t, "{$1}")
	t = strings.Trim(strings.TrimSpace(t), "/")
	if t == "" {
		return "/"
	}
	return t
}
