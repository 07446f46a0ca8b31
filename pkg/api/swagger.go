package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"gopkg.in/yaml.v2"

	"coinfolio-engine/docs"
)

// SwaggerInfo holds the API documentation info
var SwaggerInfo = struct {
	Version     string
	BasePath    string
	Title       string
	Description string
}{
	Version:     "1.0.0",
	BasePath:    "/api/v1",
	Title:       "Coinfolio Engine API",
	Description: "Synthetic coin market with trade-driven price impact",
}

// setupSwagger configures Swagger documentation routes
func setupSwagger(r *gin.Engine) {
	r.GET("/api/v1/openapi.yaml", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/yaml", docs.SwaggerYAML)
	})

	r.GET("/api/v1/openapi.json", func(c *gin.Context) {
		doc, err := openAPIJSON()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to parse OpenAPI document",
			})
			return
		}
		c.JSON(http.StatusOK, doc)
	})

	r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/api/v1/openapi.json")))

	r.GET("/docs", func(c *gin.Context) {
		c.Redirect(http.StatusMovedPermanently, "/docs/")
	})

	r.GET("/api/v1/docs", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"data": gin.H{
				"title":       SwaggerInfo.Title,
				"description": SwaggerInfo.Description,
				"version":     SwaggerInfo.Version,
				"docs_url":    "/docs/",
				"openapi_url": "/api/v1/openapi.json",
			},
		})
	})
}

// openAPIJSON decodes the embedded YAML into a JSON-encodable value.
// yaml.v2 yields map[interface{}]interface{}, which encoding/json rejects.
func openAPIJSON() (interface{}, error) {
	var doc interface{}
	if err := yaml.Unmarshal(docs.SwaggerYAML, &doc); err != nil {
		return nil, err
	}
	return stringKeys(doc), nil
}

func stringKeys(v interface{}) interface{} {
	switch t := v.(type) {
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = stringKeys(val)
		}
		return out
	case []interface{}:
		for i, val := range t {
			t[i] = stringKeys(val)
		}
		return t
	}
	return v
}
