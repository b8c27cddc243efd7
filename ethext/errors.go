// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.
package ethext

// InternalErrorCode is the JSON-RPC code of internal errors.
const InternalErrorCode = -32603

// InternalError reports a failure to serve a request. Its message is the one
// of the underlying failure.
type InternalError struct {
	Message string
}

func (e *InternalError) Error() string {
	return e.Message
}

func (e *InternalError) ErrorCode() int {
	return InternalErrorCode
}

func internalError(err error) *InternalError {
	return &InternalError{Message: err.Error()}
}
