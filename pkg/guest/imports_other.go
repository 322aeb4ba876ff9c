//go:build !wasip1

package guest

import "errors"

var errNotWasm = errors.New("waPC host functions are only available to wasip1 guests")

var wapcImports imports = noHost{}

// noHost lets the package build for native targets. Requests are empty, host calls fail.
type noHost struct{}

func (noHost) guestRequest(_, _ []byte) {}

func (noHost) guestResponse([]byte) {}

func (noHost) guestError([]byte) {}

func (noHost) hostCall(_, _, _ string, _ []byte) bool { return false }

func (noHost) hostResponseLen() uint32 { return 0 }

func (noHost) hostResponse([]byte) {}

func (noHost) hostErrorLen() uint32 { return uint32(len(errNotWasm.Error())) }

func (noHost) hostError(buf []byte) { copy(buf, errNotWasm.Error()) }

func (noHost) consoleLog(string) {}
