// Copyright 2026 The Grainhost Authors
// SPDX-License-Identifier: Apache-2.0

package web

import "github.com/grainhost/httpbridge/lib/schema"

// statusClass discriminates a statusInfo entry.
type statusClass int

const (
	classContent statusClass = iota
	classNoContent
	classRedirect
	classPrecondition
	classClientError
)

// statusInfo is the classification of one whitelisted status code.
// Status codes must be whitelisted because some have side effects
// inside the host UI and must not be forwarded blindly.
type statusInfo struct {
	class statusClass

	successCode     schema.SuccessCode     // classContent
	shouldResetForm bool                   // classNoContent
	isPermanent     bool                   // classRedirect
	switchToGet     bool                   // classRedirect
	clientErrorCode schema.ClientErrorCode // classClientError
}

// statusTable maps every whitelisted HTTP status to its
// classification. Built once at startup from the schema-declared
// success and client-error codes, overlaid with the fixed no-content,
// redirect, and precondition-failed entries.
var statusTable = buildStatusTable()

func buildStatusTable() map[int]statusInfo {
	table := make(map[int]statusInfo)

	for _, code := range schema.SuccessCodes() {
		table[code.HTTPStatus()] = statusInfo{class: classContent, successCode: code}
	}
	for _, code := range schema.ClientErrorCodes() {
		table[code.HTTPStatus()] = statusInfo{class: classClientError, clientErrorCode: code}
	}

	table[204] = statusInfo{class: classNoContent, shouldResetForm: false}
	table[205] = statusInfo{class: classNoContent, shouldResetForm: true}

	table[301] = statusInfo{class: classRedirect, isPermanent: true, switchToGet: true}
	table[302] = statusInfo{class: classRedirect, isPermanent: false, switchToGet: true}
	table[303] = statusInfo{class: classRedirect, isPermanent: false, switchToGet: true}
	table[307] = statusInfo{class: classRedirect, isPermanent: false, switchToGet: false}
	table[308] = statusInfo{class: classRedirect, isPermanent: true, switchToGet: false}

	table[304] = statusInfo{class: classPrecondition}
	table[412] = statusInfo{class: classPrecondition}

	return table
}

// classifyStatus looks up the classification for code. The second
// return is false when the code is not whitelisted.
func classifyStatus(code int) (statusInfo, bool) {
	info, ok := statusTable[code]
	return info, ok
}
