package oxia

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/cenkalti/backoff/v4"
	oxiaclient "github.com/oxia-db/oxia/oxia"
)

// sequencePrefix holds per-parent counters for sequential children. Keys
// under it never start with the separator, so they stay outside every
// child range scan.
const sequencePrefix = "__treekeeper_seq__"

func sequenceKey(parent string) string {
	return sequencePrefix + parent
}

// sequentialName appends a zero-padded counter to path, as ZooKeeper does.
func sequentialName(path string, seq int64) string {
	return fmt.Sprintf("%s%010d", path, seq)
}

// nextSequence reserves the next sequence number under parent with a
// compare-and-set on the parent's counter.
func (s *Service) nextSequence(ctx context.Context, parent string) (int64, error) {
	key := sequenceKey(parent)
	var reserved int64
	reserve := func() error {
		value, version, found, err := s.get(ctx, key)
		if err != nil {
			return backoff.Permanent(err)
		}

		var current int64
		var opt oxiaclient.PutOption = oxiaclient.ExpectedRecordNotExists()
		if found {
			current, err = strconv.ParseInt(string(value), 10, 64)
			if err != nil {
				return backoff.Permanent(fmt.Errorf("corrupt sequence counter %s: %w", key, err))
			}
			opt = oxiaclient.ExpectedVersionId(version.VersionId)
		}

		next := []byte(strconv.FormatInt(current+1, 10))
		if _, _, err := s.client.Put(ctx, key, next, opt); err != nil {
			if errors.Is(err, oxiaclient.ErrUnexpectedVersionId) {
				return err
			}
			return backoff.Permanent(err)
		}
		reserved = current
		return nil
	}

	if err := backoff.Retry(reserve, conflictBackOff(ctx)); err != nil {
		return 0, fmt.Errorf("sequence under %s: %w", parent, err)
	}
	return reserved, nil
}

// dropSequence removes the counter a deleted node kept for its sequential
// children. The node itself is already gone, so a failure here only leaves a
// stale counter behind and is logged rather than returned.
func (s *Service) dropSequence(ctx context.Context, path string) {
	err := s.client.Delete(ctx, sequenceKey(path))
	if err == nil || errors.Is(err, oxiaclient.ErrKeyNotFound) {
		return
	}
	s.logger.Debugf("failed to delete sequence counter", map[string]any{
		"path":  path,
		"error": err,
	})
}
