package escrowd

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"
	g "github.com/pandodao/generic"
)

var (
	listingPrefix = []byte("l:")
	jobPrefix     = []byte("j:")
)

// The badger store only ever holds derived views with a TTL; the
// ledger stays the single source of truth and every miss recomputes.

func saveListing(txn *badger.Txn, listing *Listing, ttl time.Duration) error {
	pk := buildIndexKey(listingPrefix, ownerID(listing.Owner))

	e := badger.NewEntry(pk, g.Must(json.Marshal(listing))).WithTTL(ttl)
	return txn.SetEntry(e)
}

func findListing(txn *badger.Txn, owner string) (*Listing, error) {
	pk := buildIndexKey(listingPrefix, ownerID(owner))

	item, err := txn.Get(pk)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}

		return nil, err
	}

	var listing Listing
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &listing)
	}); err != nil {
		return nil, err
	}

	return &listing, nil
}

func deleteListing(txn *badger.Txn, owner string) error {
	return txn.Delete(buildIndexKey(listingPrefix, ownerID(owner)))
}

// markListingClosed flips one cached record to Closed in place. Used
// after an accept confirms: the object no longer resolves, so there is
// nothing to re-query.
func markListingClosed(txn *badger.Txn, owner, escrowID string) error {
	listing, err := findListing(txn, owner)
	if err != nil || listing == nil {
		return err
	}

	for _, rec := range listing.Escrows {
		if rec.ID == escrowID {
			rec.Status = EscrowClosed
		}
	}

	pk := buildIndexKey(listingPrefix, ownerID(owner))
	return txn.SetEntry(badger.NewEntry(pk, g.Must(json.Marshal(listing))))
}

func saveJob(txn *badger.Txn, job *Job, ttl time.Duration) error {
	pk := buildIndexKey(jobPrefix, ownerID(job.Owner))

	e := badger.NewEntry(pk, g.Must(json.Marshal(job))).WithTTL(ttl)
	return txn.SetEntry(e)
}

func deleteJob(txn *badger.Txn, owner string) error {
	return txn.Delete(buildIndexKey(jobPrefix, ownerID(owner)))
}

func listJobs(txn *badger.Txn) ([]*Job, error) {
	var jobs []*Job

	opts := badger.DefaultIteratorOptions
	opts.PrefetchSize = 10
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Seek(jobPrefix); it.ValidForPrefix(jobPrefix); it.Next() {
		item := it.Item()

		var job Job
		err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &job)
		})

		if err != nil {
			return nil, err
		}

		jobs = append(jobs, &job)
	}

	return jobs, nil
}

func ListJobs(db *badger.DB) ([]*Job, error) {
	txn := db.NewTransaction(false)
	defer txn.Discard()

	return listJobs(txn)
}

func FindListing(db *badger.DB, owner string) (*Listing, error) {
	txn := db.NewTransaction(false)
	defer txn.Discard()

	return findListing(txn, owner)
}
