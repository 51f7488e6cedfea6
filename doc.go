/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package engine runs Hyperledger Aries DIDComm protocols as persistent state machines
// (https://www.hyperledger.org/projects/aries).
//
// # Packages for end developer usage
//
// pkg/framework/agent: Assembles an agent from a storage provider, a wallet, a ledger and the outbound
// transports, and routes inbound envelopes to the protocol services.
//
// pkg/didcomm/protocol/connection, issuecredential, presentproof, revocationnotification: The protocol
// services. Each runs its threads on a runner journaling every committed transition.
//
// pkg/didcomm/protocol/mediator, messagepickup: Mediation on both sides, holding messages for recipients
// without an endpoint.
//
// Basic workflow
//
//  1. Create an agent with agent.New and the options it needs.
//  2. Call Start to run the timeout sweeper and the mediator polling.
//  3. Serve agent.Receive on an inbound transport.
//  4. Drive the protocols through the services returned by the agent.
//  5. Call Close to release resources.
package engine
