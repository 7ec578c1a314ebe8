package mongo

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	apperrors "mongo-blob-backup/internal/errors"
	"mongo-blob-backup/internal/logging"
	"mongo-blob-backup/internal/snapshot"
)

// systemDatabases are never enumerated, backed up, or dropped
var systemDatabases = map[string]bool{
	"admin":  true,
	"local":  true,
	"config": true,
}

// IsSystemDatabase reports whether name is a server-internal database
func IsSystemDatabase(name string) bool {
	return systemDatabases[name]
}

// Enumerator walks a live instance and produces the backup inventory. Any
// failure here aborts the run before a single unit is attempted.
type Enumerator struct {
	client     *mongo.Client
	logger     *logging.Logger
	classifier *apperrors.ErrorClassifier
}

// NewEnumerator creates an enumerator bound to a connected client
func NewEnumerator(client *mongo.Client, logger *logging.Logger) *Enumerator {
	return &Enumerator{
		client:     client,
		logger:     logger,
		classifier: apperrors.NewErrorClassifier(),
	}
}

// Databases lists the non-system databases, sorted by name
func (e *Enumerator) Databases(ctx context.Context) ([]string, error) {
	names, err := e.client.ListDatabaseNames(ctx, bson.M{})
	if err != nil {
		return nil, apperrors.NewEnumerationError("failed to list databases", err)
	}

	var databases []string
	for _, name := range names {
		if IsSystemDatabase(name) {
			continue
		}
		databases = append(databases, name)
	}
	sort.Strings(databases)

	return databases, nil
}

// Collections lists the collections of one database, sorted by name.
// Internal system.* collections are excluded.
func (e *Enumerator) Collections(ctx context.Context, database string) ([]string, error) {
	names, err := e.client.Database(database).ListCollectionNames(ctx, bson.M{})
	if err != nil {
		return nil, apperrors.NewEnumerationError(
			fmt.Sprintf("failed to list collections of %s", database), err).
			WithContext("database", database)
	}

	var collections []string
	for _, name := range names {
		if strings.HasPrefix(name, "system.") {
			continue
		}
		collections = append(collections, name)
	}
	sort.Strings(collections)

	return collections, nil
}

// Units produces one backup unit per collection across all non-system
// databases. server is only used for logging.
func (e *Enumerator) Units(ctx context.Context, server string) ([]snapshot.Unit, error) {
	startTime := time.Now()

	databases, err := e.Databases(ctx)
	if err != nil {
		e.logger.LogEnumeration(server, 0, 0, time.Since(startTime), err)
		return nil, err
	}

	var units []snapshot.Unit
	for _, database := range databases {
		collections, err := e.Collections(ctx, database)
		if err != nil {
			e.logger.LogEnumeration(server, len(databases), len(units), time.Since(startTime), err)
			return nil, err
		}
		for _, collection := range collections {
			units = append(units, snapshot.Unit{
				Database:   database,
				Collection: collection,
			})
		}
	}

	e.logger.LogEnumeration(server, len(databases), len(units), time.Since(startTime), nil)
	return units, nil
}

// CollectionCount returns the estimated document count of a collection. A
// collection that vanished after enumeration counts as zero.
func (e *Enumerator) CollectionCount(ctx context.Context, database, collection string) (int64, error) {
	count, err := e.client.Database(database).Collection(collection).EstimatedDocumentCount(ctx)
	if err != nil {
		classified := e.classifier.ClassifyError(err)
		if apperrors.GetErrorType(classified) == apperrors.ErrorTypeNotFound {
			return 0, nil
		}
		return 0, apperrors.NewAppError(
			apperrors.GetErrorType(classified),
			fmt.Sprintf("failed to count documents of %s.%s", database, collection),
			err,
		).WithContext("database", database).WithContext("collection", collection)
	}
	return count, nil
}
