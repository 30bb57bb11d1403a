// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqtt

import (
	"errors"
	"net"
)

var fatalConnackReasonCodes = map[byte]struct{}{
	connackMalformedPacket:             {},
	connackProtocolError:               {},
	connackImplementationSpecificError: {},
	connackUnsupportedProtocolVersion:  {},
	connackClientIdentifierNotValid:    {},
	connackBadUserNameOrPassword:       {},
	connackNotAuthorized:               {},
	connackBanned:                      {},
	connackBadAuthenticationMethod:     {},
	connackTopicNameInvalid:            {},
	connackPacketTooLarge:              {},
	connackPayloadFormatInvalid:        {},
	connackRetainNotSupported:          {},
	connackQoSNotSupported:             {},
	connackUseAnotherServer:            {},
	connackServerMoved:                 {},
}

// isFatalConnackReasonCode checks if the reason code in the CONNACK received
// from the server is fatal.
func isFatalConnackReasonCode(reasonCode byte) bool {
	_, ok := fatalConnackReasonCodes[reasonCode]
	return ok
}

var fatalDisconnectReasonCodes = map[byte]struct{}{
	disconnectMalformedPacket:                     {},
	disconnectProtocolError:                       {},
	disconnectNotAuthorized:                       {},
	disconnectSessionTakenOver:                    {},
	disconnectTopicFilterInvalid:                  {},
	disconnectTopicNameInvalid:                    {},
	disconnectTopicAliasInvalid:                   {},
	disconnectPacketTooLarge:                      {},
	disconnectPayloadFormatInvalid:                {},
	disconnectRetainNotSupported:                  {},
	disconnectQoSNotSupported:                     {},
	disconnectServerMoved:                         {},
	disconnectSharedSubscriptionsNotSupported:     {},
	disconnectSubscriptionIdentifiersNotSupported: {},
	disconnectWildcardSubscriptionsNotSupported:   {},
}

// isFatalDisconnectReasonCode checks if the reason code in the DISCONNECT
// received from the server is fatal.
func isFatalDisconnectReasonCode(reasonCode byte) bool {
	_, ok := fatalDisconnectReasonCodes[reasonCode]
	return ok
}

// isFatal reports whether an error ends Run instead of triggering a
// reconnect. Exhausted retries are handled separately by the supervisor.
func isFatal(err error) bool {
	var (
		fatalConnack    *FatalConnackError
		fatalDisconnect *FatalDisconnectError
		invalidArgument *InvalidArgumentError
		dnsErr          *net.DNSError
	)
	switch {
	case errors.As(err, &fatalConnack),
		errors.As(err, &fatalDisconnect),
		errors.As(err, &invalidArgument):
		return true
	case errors.As(err, &dnsErr):
		return dnsErr.IsNotFound
	default:
		return false
	}
}
