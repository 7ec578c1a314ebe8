package mongo

import (
	"context"
	"fmt"

	apperrors "mongo-blob-backup/internal/errors"
)

// DropAllCollections removes every collection from every non-system database
// so a restore starts from a clean target. Returns the number of collections
// dropped. The first failure aborts the sweep; the target is then in a
// partially cleared state and the caller must not proceed to load.
func (e *Enumerator) DropAllCollections(ctx context.Context) (int, error) {
	databases, err := e.Databases(ctx)
	if err != nil {
		return 0, err
	}

	dropped := 0
	for _, database := range databases {
		collections, err := e.Collections(ctx, database)
		if err != nil {
			return dropped, err
		}

		for _, collection := range collections {
			e.logger.WithFields(map[string]interface{}{
				"database":   database,
				"collection": collection,
			}).Debug("Dropping collection")

			if err := e.client.Database(database).Collection(collection).Drop(ctx); err != nil {
				classified := e.classifier.ClassifyError(err)
				return dropped, apperrors.NewAppError(
					apperrors.GetErrorType(classified),
					fmt.Sprintf("failed to drop %s.%s", database, collection),
					err,
				).WithContext("database", database).WithContext("collection", collection)
			}
			dropped++
		}
	}

	return dropped, nil
}
