// Package api 内嵌的 OpenAPI 文档
package api

import (
	"context"
	"embed"
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"
)

// SpecFile 文档在 OpenAPIFS 中的路径
const SpecFile = "openapi/school.yaml"

//go:embed openapi/*.yaml
var OpenAPIFS embed.FS

// SpecYAML 返回原始 YAML 文档
func SpecYAML() ([]byte, error) {
	return OpenAPIFS.ReadFile(SpecFile)
}

// LoadSpec 解析并校验文档
func LoadSpec(ctx context.Context) (*openapi3.T, error) {
	data, err := SpecYAML()
	if err != nil {
		return nil, fmt.Errorf("read openapi document: %w", err)
	}

	loader := openapi3.NewLoader()
	loader.Context = ctx
	doc, err := loader.LoadFromData(data)
	if err != nil {
		return nil, fmt.Errorf("load openapi document: %w", err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("validate openapi document: %w", err)
	}
	return doc, nil
}
