package handlers

import (
	"errors"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/suPer8Hu/clarity-chat/internal/common"
)

var registerTagNames sync.Once

// useJSONFieldNames makes gin's validator report fields by their json name.
func useJSONFieldNames() {
	registerTagNames.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
}

var bindMessages = map[string]string{
	"required": "is required",
	"max":      "is too long",
	"min":      "is too short",
	"oneof":    "is not an allowed value",
}

// bindJSON decodes the body into dst and writes the error response itself
// when it returns false.
func bindJSON(c *gin.Context, dst any) bool {
	useJSONFieldNames()
	err := c.ShouldBindJSON(dst)
	if err == nil {
		return true
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			msg, ok := bindMessages[fe.Tag()]
			if !ok {
				msg = "is invalid"
			}
			fields[fe.Field()] = msg
		}
		common.FailFields(c, fields)
		return false
	}
	common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
	return false
}
