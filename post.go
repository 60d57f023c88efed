package networking

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// CallOptions are the per-call inputs besides the request data.
type CallOptions struct {
	// Authentication is passed to the Signer for signed endpoints.
	Authentication Authentication
	// Headers are added last and win over every generated header.
	Headers map[string]string
	// Encryptor, when set, wraps the request and unwraps the response.
	Encryptor Encryptor
	// EncryptionPolicy overrides the dispatcher policy for this call.
	EncryptionPolicy *EncryptionPolicy
}

// Result is the single outcome of a call: exactly one of Value and Err is
// meaningful.
type Result[T any] struct {
	Value T
	Err   *ApiError
}

// OK reports whether the call succeeded.
func (r Result[T]) OK() bool {
	return r.Err == nil
}

// Call is the handle of an asynchronous call. Its result is delivered
// exactly once.
type Call[T any] struct {
	done       chan struct{}
	once       sync.Once
	result     Result[T]
	cancel     context.CancelFunc
	onComplete func(Result[T])
}

// Done is closed when the result is available.
func (c *Call[T]) Done() <-chan struct{} {
	return c.done
}

// Result blocks until the call completes.
func (c *Call[T]) Result() (T, error) {
	<-c.done
	if c.result.Err != nil {
		return c.result.Value, c.result.Err
	}
	return c.result.Value, nil
}

// Err blocks until the call completes and returns its failure, if any.
func (c *Call[T]) Err() *ApiError {
	<-c.done
	return c.result.Err
}

// Wait blocks until the call completes or ctx is done. Giving up on the wait
// does not cancel the call.
func (c *Call[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-c.done:
		return c.Result()
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Cancel aborts the call on a best-effort basis. A call that already
// completed keeps its result. Otherwise its error wraps context.Canceled and
// its Kind names the interrupted stage: AuthResolutionFailure while waiting
// for a token or signature, TransportFailure during the exchange.
func (c *Call[T]) Cancel() {
	c.cancel()
}

func (c *Call[T]) complete(r Result[T]) {
	delivered := false
	c.once.Do(func() {
		c.result = r
		close(c.done)
		delivered = true
	})
	if delivered && c.onComplete != nil {
		c.onComplete(r)
	}
}

// Send starts a call and returns immediately. The request runs on its own
// goroutine; ctx bounds it and Call.Cancel aborts it.
func Send[Req, Resp any](ctx context.Context, d *Dispatcher, endpoint Endpoint[Req, Resp], data Req, opts CallOptions) *Call[Resp] {
	return start(ctx, d, endpoint, data, opts, nil)
}

// SendFunc is Send with a completion callback. onComplete runs exactly once,
// on the call's goroutine, after the result is published to Done.
func SendFunc[Req, Resp any](ctx context.Context, d *Dispatcher, endpoint Endpoint[Req, Resp], data Req, opts CallOptions, onComplete func(Result[Resp])) *Call[Resp] {
	return start(ctx, d, endpoint, data, opts, onComplete)
}

// Post sends a request and waits for the response.
func Post[Req, Resp any](ctx context.Context, d *Dispatcher, endpoint Endpoint[Req, Resp], data Req, opts CallOptions) (Resp, error) {
	resp, apiErr := dispatch(ctx, d, endpoint, data, opts)
	if apiErr != nil {
		return resp, apiErr
	}
	return resp, nil
}

func start[Req, Resp any](ctx context.Context, d *Dispatcher, endpoint Endpoint[Req, Resp], data Req, opts CallOptions, onComplete func(Result[Resp])) *Call[Resp] {
	ctx, cancel := context.WithCancel(ctx)
	call := &Call[Resp]{
		done:       make(chan struct{}),
		cancel:     cancel,
		onComplete: onComplete,
	}

	go func() {
		defer cancel()
		resp, apiErr := dispatch(ctx, d, endpoint, data, opts)
		call.complete(Result[Resp]{Value: resp, Err: apiErr})
	}()

	return call
}

// dispatch runs the whole pipeline for one call: serialize, wrap, resolve
// authentication, merge headers, POST, then unwrap and decode or classify.
// It always returns; panics become a DecodeFailure.
func dispatch[Req, Resp any](ctx context.Context, d *Dispatcher, endpoint Endpoint[Req, Resp], data Req, opts CallOptions) (resp Resp, apiErr *ApiError) {
	if d == nil {
		return resp, &ApiError{Kind: ConfigurationFailure, Message: "nil dispatcher", Timestamp: time.Now()}
	}

	ri := d.newRequestInfo(endpoint.Path(), endpoint.Auth(), endpoint.ResourceID(), endpoint.TokenName(), endpoint.String())
	statusCode := 0
	d.begin(ri)
	defer func() {
		if r := recover(); r != nil {
			var zero Resp
			resp = zero
			apiErr = ri.fail(DecodeFailure, "panic while processing call", fmt.Errorf("panic: %v", r))
		}
		d.finish(ri, statusCode, apiErr)
	}()

	plain, err := d.codec.Marshal(data)
	if err != nil {
		return resp, ri.fail(DecodeFailure, "failed to encode request", err)
	}

	wrapped, err := Wrap(opts.Encryptor, plain)
	if err != nil {
		return resp, ri.enrich(ClassifyError(err))
	}
	if opts.Encryptor != nil && !wrapped.Encrypted() {
		d.metrics.RecordEncryptionDeclined(ri.path)
		if d.effectivePolicy(opts) == EncryptionRequired {
			failure := ri.fail(AuthResolutionFailure, "encryption required but the encryptor declined", ErrEncryptionDeclined)
			failure.ErrorCode = ErrorCodeEncryption
			return resp, failure
		}
		d.logger.Warn("Encryptor declined, sending plain request", "requestID", ri.id, "url", ri.url)
	}

	authHeader, apiErr := d.resolveAuth(ctx, ri, opts.Authentication, wrapped.Body)
	if apiErr != nil {
		return resp, apiErr
	}

	var metadata *EncryptorMetadata
	if wrapped.Encrypted() && ri.mode.sendsEncryptionMetadata() {
		m := opts.Encryptor.Metadata()
		metadata = &m
	}
	header := d.buildHeaders(authHeader, metadata, opts.Headers)

	statusCode, body, err := d.exchange(ctx, ri.url, header, wrapped.Body)
	if err != nil {
		return resp, ri.enrich(transportFailure(err))
	}

	var decryptor Encryptor
	if wrapped.Encrypted() {
		decryptor = opts.Encryptor
	}
	resp, apiErr = decodeResponse[Resp](d, ri, decryptor, statusCode, body)
	return resp, apiErr
}

// decodeResponse turns a completed exchange into the typed response or an
// ApiError.
func decodeResponse[Resp any](d *Dispatcher, ri *requestInfo, decryptor Encryptor, statusCode int, body []byte) (Resp, *ApiError) {
	var out Resp

	if statusCode < 200 || statusCode > 299 {
		return out, ri.enrich(d.httpFailure(statusCode, body))
	}

	plain := body
	if decryptor != nil {
		unwrapped, err := Unwrap(decryptor, body)
		if err != nil {
			failure := *ClassifyError(err)
			failure.StatusCode = statusCode
			return out, ri.enrich(&failure)
		}
		plain = unwrapped
		if d.responseObserver != nil {
			d.responseObserver(ri.url, plain)
		}
	}

	if errResp, ok := d.errorStatusBody(plain); ok {
		failure := ClassifyError(&ErrorResponseError{StatusCode: statusCode, Object: errResp.ResponseObject})
		return out, ri.enrich(failure)
	}

	if err := d.codec.Unmarshal(plain, &out); err != nil {
		failure := ri.fail(DecodeFailure, "failed to decode response", err)
		failure.StatusCode = statusCode
		return out, failure
	}
	return out, nil
}

// httpFailure classifies a non-2xx response. A body that is not a valid
// error response leaves only the status code.
func (d *Dispatcher) httpFailure(statusCode int, body []byte) *ApiError {
	apiErr := &ApiError{
		Kind:       HTTPFailure,
		StatusCode: statusCode,
		Message:    fmt.Sprintf("request failed with status %d", statusCode),
		Cause:      &HTTPError{StatusCode: statusCode, Body: body},
		Timestamp:  time.Now(),
	}

	var errResp ErrorResponse
	if len(body) == 0 || d.codec.Unmarshal(body, &errResp) != nil {
		return apiErr
	}
	obj := errResp.ResponseObject
	apiErr.Response = &obj
	apiErr.ErrorCode, _ = ParseErrorCode(obj.Code)
	return apiErr
}

// errorStatusBody reports whether a 2xx body carries status ERROR and, if
// so, decodes it as an error response.
func (d *Dispatcher) errorStatusBody(body []byte) (ErrorResponse, bool) {
	var peek statusPeek
	if d.codec.Unmarshal(body, &peek) != nil || Status(peek.Status) != StatusError {
		return ErrorResponse{}, false
	}
	var errResp ErrorResponse
	if d.codec.Unmarshal(body, &errResp) != nil {
		return ErrorResponse{}, false
	}
	return errResp, true
}

// transportFailure classifies an exchange error. ClassifyError may hand back
// an *ApiError owned by someone else, so it is copied before reclassifying.
func transportFailure(err error) *ApiError {
	apiErr := ClassifyError(err)
	if apiErr.Kind != UnknownFailure {
		return apiErr
	}
	cp := *apiErr
	cp.Kind = TransportFailure
	cp.Message = "network request failed"
	return &cp
}
