package httpapi

import (
	"encoding/json"
	"net/http"
	"runtime/debug"
	"sync"
	"time"
)

const (
	healthStatus = "ok"
	healthMode   = "http-stateless"
	sdkModule    = "github.com/modelcontextprotocol/go-sdk"

	// ISO 8601 with millisecond precision.
	healthTimeLayout = "2006-01-02T15:04:05.000Z07:00"
)

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status        string `json:"status"`
	Mode          string `json:"mode"`
	SDKGeneration string `json:"sdkGeneration"`
	Time          string `json:"time"`
}

// SDKGeneration names the MCP SDK the binary was built against, for example
// "go-sdk v1.2.0".
var SDKGeneration = sync.OnceValue(func() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "go-sdk"
	}
	for _, dep := range info.Deps {
		if dep.Path == sdkModule {
			return "go-sdk " + dep.Version
		}
	}
	return "go-sdk"
})

func healthHandler(now func() time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(HealthResponse{
			Status:        healthStatus,
			Mode:          healthMode,
			SDKGeneration: SDKGeneration(),
			Time:          now().UTC().Format(healthTimeLayout),
		})
	}
}
