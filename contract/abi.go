// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package contract

import (
	"os"
	"strings"

	"github.com/esims/chainvault/errors"
	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Contract method names.
const (
	MethodRecordSubmission       = "recordSubmission"
	MethodMarkApproved           = "markApproved"
	MethodMarkRejected           = "markRejected"
	MethodAddFileHash            = "addFileHash"
	MethodAddFileChunk           = "addFileChunk"
	MethodAddFileChunks          = "addFileChunks"
	MethodAddEncryptedChunks     = "addEncryptedChunks"
	MethodGetFileChunkCount      = "getFileChunkCount"
	MethodReadFileChunk          = "readFileChunk"
	MethodGetEncryptedChunkCount = "getEncryptedChunkCount"
	MethodReadEncryptedChunk     = "readEncryptedChunk"
	MethodGetRecord              = "getRecord"
)

// DefaultABI is the interface of the document registry contract.
const DefaultABI = `[
{"type":"function","name":"recordSubmission","stateMutability":"nonpayable","inputs":[{"name":"docId","type":"uint256"},{"name":"projectId","type":"uint256"},{"name":"contentRef","type":"string"},{"name":"checksum","type":"string"}],"outputs":[]},
{"type":"function","name":"markApproved","stateMutability":"nonpayable","inputs":[{"name":"docId","type":"uint256"}],"outputs":[]},
{"type":"function","name":"markRejected","stateMutability":"nonpayable","inputs":[{"name":"docId","type":"uint256"}],"outputs":[]},
{"type":"function","name":"addFileHash","stateMutability":"nonpayable","inputs":[{"name":"docId","type":"uint256"},{"name":"fileHash","type":"bytes32"}],"outputs":[]},
{"type":"function","name":"addFileChunk","stateMutability":"nonpayable","inputs":[{"name":"docId","type":"uint256"},{"name":"chunk","type":"bytes"}],"outputs":[]},
{"type":"function","name":"addFileChunks","stateMutability":"nonpayable","inputs":[{"name":"docId","type":"uint256"},{"name":"chunks","type":"bytes[]"}],"outputs":[]},
{"type":"function","name":"addEncryptedChunks","stateMutability":"nonpayable","inputs":[{"name":"docId","type":"uint256"},{"name":"payloads","type":"bytes[]"}],"outputs":[]},
{"type":"function","name":"getFileChunkCount","stateMutability":"view","inputs":[{"name":"docId","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"readFileChunk","stateMutability":"view","inputs":[{"name":"docId","type":"uint256"},{"name":"index","type":"uint256"}],"outputs":[{"name":"","type":"bytes"}]},
{"type":"function","name":"getEncryptedChunkCount","stateMutability":"view","inputs":[{"name":"docId","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"readEncryptedChunk","stateMutability":"view","inputs":[{"name":"docId","type":"uint256"},{"name":"index","type":"uint256"}],"outputs":[{"name":"","type":"bytes"}]},
{"type":"function","name":"getRecord","stateMutability":"view","inputs":[{"name":"docId","type":"uint256"}],"outputs":[{"name":"submitter","type":"address"},{"name":"status","type":"uint8"}]}
]`

// ParseABI parses a JSON ABI and checks that it declares every
// method the gateway uses.
func ParseABI(json string) (abi.ABI, error) {
	a, err := abi.JSON(strings.NewReader(json))
	if err != nil {
		return abi.ABI{}, errors.E(errors.Invalid, "parsing contract ABI", err)
	}
	for _, name := range []string{
		MethodRecordSubmission, MethodMarkApproved, MethodMarkRejected, MethodAddFileHash,
		MethodAddFileChunk, MethodAddFileChunks, MethodAddEncryptedChunks,
		MethodGetFileChunkCount, MethodReadFileChunk, MethodGetEncryptedChunkCount,
		MethodReadEncryptedChunk, MethodGetRecord,
	} {
		if _, ok := a.Methods[name]; !ok {
			return abi.ABI{}, errors.E(errors.Invalid, "contract ABI lacks method "+name)
		}
	}
	return a, nil
}

// LoadABI reads the ABI at path, or returns DefaultABI if path is
// empty.
func LoadABI(path string) (abi.ABI, error) {
	if path == "" {
		return ParseABI(DefaultABI)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return abi.ABI{}, errors.E(err, "reading contract ABI", path)
	}
	return ParseABI(string(b))
}
