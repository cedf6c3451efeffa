package command

import "errors"

// ErrInvalidPayload is returned when a command's data object is
// missing a required field or holds a value of the wrong shape.
var ErrInvalidPayload = errors.New("command: invalid payload")

// ErrUnknownBluetoothAction is returned for a bluetooth:* command
// whose action isn't one of the six the router recognizes.
var ErrUnknownBluetoothAction = errors.New("command: unknown bluetooth action")
