package pagination

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name        string
		page, limit int
		want        Params
	}{
		{"defaults", 0, 0, Params{Page: 1, Limit: DefaultLimit, Offset: 0}},
		{"third page", 3, 10, Params{Page: 3, Limit: 10, Offset: 20}},
		{"negative", -2, -5, Params{Page: 1, Limit: DefaultLimit, Offset: 0}},
		{"capped", 2, 1000, Params{Page: 2, Limit: MaxLimit, Offset: MaxLimit}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, New(tt.page, tt.limit))
		})
	}
}

func TestParse(t *testing.T) {
	gin.SetMode(gin.TestMode)

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest("GET", "/?page=2&limit=5", nil)
	assert.Equal(t, Params{Page: 2, Limit: 5, Offset: 5}, Parse(c))

	c, _ = gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest("GET", "/?page=abc&limit=", nil)
	assert.Equal(t, Params{Page: 1, Limit: DefaultLimit}, Parse(c))
}
