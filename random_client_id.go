// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqtt

import (
	"strings"

	"github.com/google/uuid"
)

// ClientIDs must be between 1 and 23 UTF-8 encoded bytes in length and only
// contain alphanumeric characters:
// https://docs.oasis-open.org/mqtt/mqtt/v5.0/os/mqtt-v5.0-os.html#_Toc3901059
const maxClientIDLength = 23

// RandomClientID generates a random valid MQTT client ID from a version 4
// UUID. Devices should prefer a stable identifier; this is the fallback when
// none is configured.
func RandomClientID() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return id[:maxClientIDLength]
}
