//go:build !govips || !cgo

package pipeline

func Startup() error {
	return nil
}

func Shutdown() {}

func Backend() string {
	return "stdlib"
}

func newCodec(opts CodecOptions) Codec {
	return newStdlibCodec(opts)
}
