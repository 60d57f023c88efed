package networking_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"

	networking "github.com/wultra/networking-android"
)

type greeting struct {
	Message string `json:"message"`
}

func ExamplePost() {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"OK","responseObject":{"message":"hello"}}`)
	}))
	defer srv.Close()

	d, err := networking.New(srv.URL, networking.WithLogLevel(networking.LogOff))
	if err != nil {
		fmt.Println(err)
		return
	}

	ep := networking.NewEndpoint[networking.ObjectRequest[greeting], networking.ObjectResponse[greeting]]("/api/greeting")
	resp, err := networking.Post(context.Background(), d, ep, networking.NewObjectRequest(greeting{Message: "hi"}), networking.CallOptions{})
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println(resp.ResponseObject.Message)
	// Output: hello
}

func ExampleClassifyError() {
	err := networking.ClassifyError(&networking.HTTPError{
		StatusCode: 409,
		Body:       []byte(`{"status":"ERROR","responseObject":{"code":"OPERATION_EXPIRED","message":"too late"}}`),
	})
	fmt.Println(err.Kind, err.StatusCode, err.ErrorCode)
	// Output: HTTPFailure 409 OPERATION_EXPIRED
}
