package escrowd

import (
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDB(t *testing.T) *badger.DB {
	t.Helper()

	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func testListing(owner string) *Listing {
	return &Listing{
		Owner: owner,
		Escrows: []*EscrowRecord{
			{
				ID:              "0xe5c1",
				TypeSignature:   TypeSignature{Deposit: coinTypeA, Payment: coinTypeB},
				RequestedAmount: 5_000_000_000,
				AmountKnown:     true,
				Creator:         owner,
				Status:          EscrowOpen,
				OriginDigest:    "TX1",
			},
		},
		UpdatedAt: time.Now(),
	}
}

func TestListingRoundTrip(t *testing.T) {
	db := testDB(t)

	listing := testListing(testOwner)
	require.NoError(t, db.Update(func(txn *badger.Txn) error {
		return saveListing(txn, listing, time.Minute)
	}))

	got, err := FindListing(db, testOwner)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, testOwner, got.Owner)
	require.Len(t, got.Escrows, 1)
	assert.Equal(t, "0xe5c1", got.Escrows[0].ID)
	assert.Equal(t, EscrowOpen, got.Escrows[0].Status)
	assert.True(t, got.Escrows[0].AmountKnown)
}

func TestFindListingMiss(t *testing.T) {
	db := testDB(t)

	got, err := FindListing(db, testOwner)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDeleteListing(t *testing.T) {
	db := testDB(t)

	require.NoError(t, db.Update(func(txn *badger.Txn) error {
		return saveListing(txn, testListing(testOwner), time.Minute)
	}))
	require.NoError(t, db.Update(func(txn *badger.Txn) error {
		return deleteListing(txn, testOwner)
	}))

	got, err := FindListing(db, testOwner)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMarkListingClosed(t *testing.T) {
	db := testDB(t)

	require.NoError(t, db.Update(func(txn *badger.Txn) error {
		return saveListing(txn, testListing(testOwner), time.Minute)
	}))
	require.NoError(t, db.Update(func(txn *badger.Txn) error {
		return markListingClosed(txn, testOwner, "0xe5c1")
	}))

	got, err := FindListing(db, testOwner)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, EscrowClosed, got.Escrows[0].Status)
	// the creation-time amount survives the flip
	assert.Equal(t, uint64(5_000_000_000), got.Escrows[0].RequestedAmount)
}

func TestMarkListingClosedNoListing(t *testing.T) {
	db := testDB(t)

	// nothing cached is not an error
	require.NoError(t, db.Update(func(txn *badger.Txn) error {
		return markListingClosed(txn, testOwner, "0xe5c1")
	}))
}

func TestJobQueue(t *testing.T) {
	db := testDB(t)

	jobs, err := ListJobs(db)
	require.NoError(t, err)
	assert.Empty(t, jobs)

	require.NoError(t, db.Update(func(txn *badger.Txn) error {
		return saveJob(txn, &Job{CreatedAt: time.Now(), Owner: testOwner}, time.Minute)
	}))
	require.NoError(t, db.Update(func(txn *badger.Txn) error {
		return saveJob(txn, &Job{CreatedAt: time.Now(), Owner: "0xb0b"}, time.Minute)
	}))

	jobs, err = ListJobs(db)
	require.NoError(t, err)
	assert.Len(t, jobs, 2)

	// re-enqueueing the same owner overwrites, never duplicates
	require.NoError(t, db.Update(func(txn *badger.Txn) error {
		return saveJob(txn, &Job{CreatedAt: time.Now(), Owner: testOwner}, time.Minute)
	}))

	jobs, err = ListJobs(db)
	require.NoError(t, err)
	assert.Len(t, jobs, 2)

	require.NoError(t, db.Update(func(txn *badger.Txn) error {
		return deleteJob(txn, testOwner)
	}))

	jobs, err = ListJobs(db)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "0xb0b", jobs[0].Owner)
}
