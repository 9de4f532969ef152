// Package httputil provides the HTTP helpers of the eventbusd API.
//
// # Response Helpers
//
//	httputil.WriteJSON(w, http.StatusOK, stats)
//	httputil.WriteBadRequest(w, "mode must be sync or async")
//	httputil.WriteServiceUnavailable(w, err.Error())
//
// Error bodies carry the request id assigned by RequestIDMiddleware.
//
// # Request Parsing
//
//	var props map[string]interface{}
//	if err := httputil.ParseOptionalJSON(r, &props); err != nil {
//		httputil.WriteBadRequest(w, err.Error())
//		return
//	}
//	mode, err := httputil.ParseQueryEnum(r, "mode", "sync", "sync", "async")
//
// # Middleware
//
//	router.Use(httputil.Chain(
//		httputil.RequestIDMiddleware(logger),
//		httputil.LoggingMiddleware,
//		httputil.RecoveryMiddleware,
//		httputil.MaxBytesMiddleware(1<<20),
//	))
package httputil
