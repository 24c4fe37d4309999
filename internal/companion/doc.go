// Package companion installs and tracks the on-device helper tools.
//
// Three tools are pushed to every newly seen device, in this order:
//
//   - minicap: screen mirroring binary plus a shared library matched to the
//     device ABI and SDK level
//   - minitouch: input injection binary matched to the device ABI
//   - uiautomator2 server: instrumentation APKs for UI automation
//
// The resource tree under companion.resources_dir is laid out as:
//
//	minicap/bin/<abi>/minicap
//	minicap/shared/android-<sdk>/<abi>/minicap.so
//	minitouch/<abi>/minitouch
//	uiautomator2/uiautomator2-server.apk
//	uiautomator2/uiautomator2-server-test.apk
//
// Sessions are the per-device handles for the running tools. This package
// only binds them to a device; the tools' wire protocols live elsewhere.
package companion
