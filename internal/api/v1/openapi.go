package apiv1

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/gofiber/fiber/v2"
)

// LoadDocument parses the OpenAPI document at path and validates it.
func LoadDocument(ctx context.Context, path string) (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("validate %s: %w", path, err)
	}
	return doc, nil
}

// Undocumented lists the routes mounted by RegisterHandlers that doc does not
// describe, formatted as "METHOD /path".
func Undocumented(doc *openapi3.T) []string {
	app := fiber.New()
	RegisterHandlers(app, &APIServer{}, Guards{})

	var missing []string
	for _, r := range app.GetRoutes(true) {
		if r.Method == fiber.MethodHead {
			continue
		}
		path := openAPIPath(r.Path)
		item := doc.Paths.Value(path)
		if item == nil || item.GetOperation(r.Method) == nil {
			missing = append(missing, r.Method+" "+path)
		}
	}
	sort.Strings(missing)
	return missing
}

// openAPIPath rewrites fiber parameters (":id") into template form ("{id}").
func openAPIPath(route string) string {
	parts := strings.Split(route, "/")
	for i, p := range parts {
		if strings.HasPrefix(p, ":") {
			parts[i] = "{" + strings.TrimSuffix(p[1:], "?") + "}"
		}
	}
	return strings.Join(parts, "/")
}
