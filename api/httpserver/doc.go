// Package httpserver provides the reusable HTTP server every network node
// (registry, gateway, buyer and seller adapters) runs on.
//
// The BaseServer wires standard middleware (request id, real ip, panic
// recovery, structured request logging), health and drain endpoints, an
// optional prometheus metrics listener and graceful shutdown around
// component-specific routes.
//
// # Server Lifecycle
//
//  1. Initialization: configure the server and pass route registrars
//  2. Startup: RunInBackground starts the HTTP and metrics listeners
//  3. Readiness control: /drain and /undrain flip the /readyz answer so load
//     balancers can take the node out of rotation before shutdown
//  4. Graceful shutdown: Shutdown waits for in-flight requests
//
// # Usage
//
//	// Implement the RouteRegistrar interface for your component
//	func (s *Service) RegisterRoutes(r chi.Router) {
//	    r.Post("/search", s.handleSearch)
//	}
//
//	srv, err := httpserver.New(cfg, service)
//	if err != nil {
//	    return err
//	}
//	srv.RunInBackground()
//	defer srv.Shutdown()
package httpserver
