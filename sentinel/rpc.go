package sentinel

import (
	"net/http"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/cors"
)

// AdminAPI exposes the two admin JSON-RPC methods of §4.14/§6.3 under
// the "sentinel" namespace. Access control is deliberately not this
// package's concern (§4.14's "Sentinel does not enforce this itself");
// callers gate the namespace to a local/admin transport the way the
// surrounding node already gates its own admin/debug namespaces.
type AdminAPI struct {
	pause *PauseController
}

// NewAdminAPI builds the RPC surface over a shared PauseController.
func NewAdminAPI(pause *PauseController) *AdminAPI {
	return &AdminAPI{pause: pause}
}

// Resume implements sentinel_resume: returns true iff the controller
// transitioned from paused to idle (§4.14).
func (a *AdminAPI) Resume() bool {
	return a.pause.Resume()
}

// Status implements sentinel_status (§4.14, §6.3).
func (a *AdminAPI) Status() PauseStatus {
	return a.pause.Status()
}

// APIs returns the rpc.API descriptor the node's RPC server registers,
// following go-ethereum's own admin-namespace registration convention.
func APIs(pause *PauseController) []rpc.API {
	return []rpc.API{
		{
			Namespace: "sentinel",
			Service:   NewAdminAPI(pause),
		},
	}
}

// CORSHandler wraps an HTTP handler (typically the WebSocketSink's
// upgrade endpoint) with an allow-list CORS policy using the teacher's
// rs/cors dependency, matching the node's own HTTP/WS CORS gating.
func CORSHandler(allowedOrigins []string, next http.Handler) http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
	})
	return c.Handler(next)
}
