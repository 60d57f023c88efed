// Package networking sends authenticated, optionally end-to-end encrypted JSON
// requests to a PowerAuth-style backend and decodes typed responses:
//
//   - Three authentication modes per endpoint: none, signed, token-signed
//   - Request signing through a pluggable Signer (HMAC and Dilithium included)
//   - Named tokens acquired on demand, cached, and shared between concurrent callers
//   - Optional ECIES envelope around request and response bodies
//   - One error type, *ApiError, classifying every failure by kind and backend code
//   - Middleware chain, circuit breaker, Prometheus metrics and leveled logging
//
// Design goals:
//   - Endpoints are typed values; the compiler checks request and response shapes
//   - Nothing is retried; every failure reaches the caller exactly once
//   - Safe concurrent use of a single *Dispatcher instance
//
// Typical usage:
//
//	d, err := networking.New("https://api.example.com/enrollment-server",
//	    networking.WithSigner(signer),
//	    networking.WithTokenProvider(tokens),
//	    networking.WithAcceptLanguage("cs_CZ"),
//	)
//	ep := networking.NewSignedEndpoint[Req, networking.StatusResponse]("/api/auth/token/app/operation/list", "/operation/list")
//	resp, err := networking.Post(ctx, d, ep, req, networking.CallOptions{
//	    Authentication: networking.PossessionAuth(),
//	})
//
// Send returns a *Call for asynchronous use; its result is delivered exactly
// once, through Done/Result or an optional callback (SendFunc).
package networking
