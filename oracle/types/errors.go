package types

import (
	errorsmod "cosmossdk.io/errors"
)

// Codespace of every error raised by the daemon.
const Codespace = "oracle"

// errors
var (
	ErrTransport         = errorsmod.Register(Codespace, 2, "transport failure")
	ErrContractRejection = errorsmod.Register(Codespace, 3, "contract rejected submission")
	ErrStorage           = errorsmod.Register(Codespace, 4, "registry storage failure")
	ErrDecode            = errorsmod.Register(Codespace, 5, "malformed event payload")
	ErrNotFound          = errorsmod.Register(Codespace, 6, "not found")
	ErrInvalidConfig     = errorsmod.Register(Codespace, 7, "invalid config")
	ErrInvalidRequest    = errorsmod.Register(Codespace, 8, "invalid request")
	ErrUnknownAccount    = errorsmod.Register(Codespace, 9, "no signer for account")
)
