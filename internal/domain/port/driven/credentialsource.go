package driven

import "github.com/ericfisherdev/archiverestore/internal/domain/model"

// CredentialSource exposes the captured bearer credential to use cases.
type CredentialSource interface {
	// Credential returns the captured credential and true, or a zero value
	// and false while nothing has been observed yet.
	Credential() (model.Credential, bool)
}

// CredentialRecorder accepts bearer values seen on outgoing traffic. Record
// reports whether the value was stored; only the first value ever is.
type CredentialRecorder interface {
	Record(raw string) bool
}
