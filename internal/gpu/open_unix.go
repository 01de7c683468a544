//go:build darwin || linux

package gpu

// openNative probes for the accelerator library on platforms with dlopen.
func openNative() (Kernel, error) {
	return OpenNative("")
}
