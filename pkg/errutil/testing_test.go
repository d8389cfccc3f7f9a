// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keygate Contributors

package errutil_test

import (
	"errors"
	"testing"

	"github.com/samber/oops"

	"github.com/keygate/keygate/pkg/errutil"
)

func TestAssertErrorCode_MatchingCode(t *testing.T) {
	err := oops.Code("MY_CODE").Errorf("test error")
	// Should not fail
	errutil.AssertErrorCode(t, err, "MY_CODE")
}

func TestAssertErrorContext_MatchingKeyValue(t *testing.T) {
	err := oops.With("user_id", "123").Errorf("test error")
	// Should not fail
	errutil.AssertErrorContext(t, err, "user_id", "123")
}

func TestAssertSentinel_WrappedThroughOops(t *testing.T) {
	sentinel := errors.New("not found")
	err := oops.Code("LOOKUP_FAILED").Wrap(sentinel)
	// Should not fail
	errutil.AssertSentinel(t, err, sentinel)
}
