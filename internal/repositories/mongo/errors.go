package mongo

import (
	"errors"
	"fmt"

	"github.com/yoockh/yooprep/internal/utils"
	"go.mongodb.org/mongo-driver/mongo"
)

// mapErr translates driver errors into the storage sentinels services expect.
// Unrecognised errors pass through untouched.
func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return utils.ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("%w: %v", utils.ErrConflict, err)
	case errors.Is(err, mongo.ErrClientDisconnected), mongo.IsTimeout(err), mongo.IsNetworkError(err):
		return fmt.Errorf("%w: %v", utils.ErrUnavailable, err)
	}
	return err
}
