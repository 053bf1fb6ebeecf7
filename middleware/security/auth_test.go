package security

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"PPresence/global"
	"PPresence/tools/errs"

	"github.com/gin-gonic/gin"
)

type verifierFunc func(string) (int64, error)

func (f verifierFunc) VerifyToken(t string) (int64, error) { return f(t) }

func fixedVerifier(good string, uid int64) TokenVerifier {
	return verifierFunc(func(t string) (int64, error) {
		if t == good {
			return uid, nil
		}
		return 0, errs.ErrTokenInvalid.Wrap()
	})
}

func TestTokenFromRequest(t *testing.T) {
	cases := []struct {
		name string
		url  string
		hdr  map[string]string
		want string
	}{
		{"query", "/chat?token=abc", nil, "abc"},
		{"bearer", "/x", map[string]string{"Authorization": "Bearer xyz"}, "xyz"},
		{"bearer lowercase", "/x", map[string]string{"Authorization": "bearer  xyz "}, "xyz"},
		{"custom header", "/x", map[string]string{"authorization": "raw"}, ""},
		{"query wins", "/x?token=q", map[string]string{"Authorization": "Bearer h"}, "q"},
		{"missing", "/x", nil, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, tc.url, nil)
			for k, v := range tc.hdr {
				r.Header.Set(k, v)
			}
			if got := TokenFromRequest(r, nil); got != tc.want {
				t.Fatalf("got %q want %q", got, tc.want)
			}
		})
	}
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", Middleware(fixedVerifier("good", 7), nil), func(c *gin.Context) {
		c.JSON(http.StatusOK, global.Sucess(UserID(c)))
	})

	do := func(authz string) global.Msg {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		if authz != "" {
			req.Header.Set("Authorization", authz)
		}
		r.ServeHTTP(w, req)
		var m global.Msg
		if err := json.Unmarshal(w.Body.Bytes(), &m); err != nil {
			t.Fatalf("bad body %q: %v", w.Body.String(), err)
		}
		return m
	}

	if m := do("Bearer good"); m.Code != 200 || m.Data != float64(7) {
		t.Fatalf("authorized = %+v", m)
	}
	if m := do("Bearer bad"); m.Code != errs.TokenInvalidError {
		t.Fatalf("bad token = %+v", m)
	}
	if m := do(""); m.Code != errs.TokenMissingError {
		t.Fatalf("missing token = %+v", m)
	}
}
