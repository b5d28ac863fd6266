//go:build !govips || !cgo

package pipeline

const Engine = "stdlib"

func Startup(int) error {
	return nil
}

func Shutdown() {}

func newTransformer() (Transformer, error) {
	return stdlibTransformer{}, nil
}
