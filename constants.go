// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqtt

import "time"

// Defaults applied by NewSessionClient when an option is left unset.
const (
	defaultKeepAlive           = 10 * time.Second
	defaultConnectTimeout      = 5 * time.Second
	defaultConnectAttempts     = 5
	defaultRetryInterval       = 5 * time.Second
	defaultReconnectDelay      = 15 * time.Second
	defaultStabilizationWindow = 5 * time.Second
	defaultPublishInterval     = 60 * time.Second
	defaultMaxPollInterval     = time.Second
	defaultCommandTopic        = "command"
	defaultTelemetryTopic      = "telemetry"

	minKeepAlive = 10 * time.Second
	maxKeepAlive = 120 * time.Second

	// Upper bound on reading the remainder of a packet once its first byte
	// has arrived.
	packetReadTimeout = 10 * time.Second

	commandHandlerKey = "command"
	jsonContentType   = "application/json"
)

// CONNACK packet reason codes
// (https://docs.oasis-open.org/mqtt/mqtt/v5.0/os/mqtt-v5.0-os.html#_Toc3901079)
const (
	connackSuccess                     byte = 0x00
	connackUnspecifiedError            byte = 0x80
	connackMalformedPacket             byte = 0x81
	connackProtocolError               byte = 0x82
	connackImplementationSpecificError byte = 0x83
	connackUnsupportedProtocolVersion  byte = 0x84
	connackClientIdentifierNotValid    byte = 0x85
	connackBadUserNameOrPassword       byte = 0x86
	connackNotAuthorized               byte = 0x87
	connackServerUnavailable           byte = 0x88
	connackServerBusy                  byte = 0x89
	connackBanned                      byte = 0x8A
	connackBadAuthenticationMethod     byte = 0x8C
	connackTopicNameInvalid            byte = 0x90
	connackPacketTooLarge              byte = 0x95
	connackQuotaExceeded               byte = 0x97
	connackPayloadFormatInvalid        byte = 0x99
	connackRetainNotSupported          byte = 0x9A
	connackQoSNotSupported             byte = 0x9B
	connackUseAnotherServer            byte = 0x9C
	connackServerMoved                 byte = 0x9D
	connackConnectionRateExceeded      byte = 0x9F
)

// DISCONNECT packet reason codes
// (https://docs.oasis-open.org/mqtt/mqtt/v5.0/os/mqtt-v5.0-os.html#_Toc3901208)
const (
	disconnectNormalDisconnection                 byte = 0x00
	disconnectUnspecifiedError                    byte = 0x80
	disconnectMalformedPacket                     byte = 0x81
	disconnectProtocolError                       byte = 0x82
	disconnectNotAuthorized                       byte = 0x87
	disconnectServerBusy                          byte = 0x89
	disconnectServerShuttingDown                  byte = 0x8B
	disconnectKeepAliveTimeout                    byte = 0x8D
	disconnectSessionTakenOver                    byte = 0x8E
	disconnectTopicFilterInvalid                  byte = 0x8F
	disconnectTopicNameInvalid                    byte = 0x90
	disconnectTopicAliasInvalid                   byte = 0x94
	disconnectPacketTooLarge                      byte = 0x95
	disconnectPayloadFormatInvalid                byte = 0x99
	disconnectRetainNotSupported                  byte = 0x9A
	disconnectQoSNotSupported                     byte = 0x9B
	disconnectServerMoved                         byte = 0x9D
	disconnectSharedSubscriptionsNotSupported     byte = 0x9E
	disconnectSubscriptionIdentifiersNotSupported byte = 0xA1
	disconnectWildcardSubscriptionsNotSupported   byte = 0xA2
)

// SUBACK reason codes at or above this value reject the subscription.
const subackFailureThreshold byte = 0x80
