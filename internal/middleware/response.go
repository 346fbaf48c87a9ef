package middleware

import (
	"net/http"

	"github.com/edupaila/community-server-go/internal/httputil"
)

func writeError(w http.ResponseWriter, err error) {
	httputil.WriteError(w, err)
}
