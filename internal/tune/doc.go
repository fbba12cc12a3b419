// Package tune picks, at runtime, the fastest of several interchangeable implementations of an
// operation and remembers the choice for every later call with an equivalent input.
//
// The moving parts:
//
//   - A TunableSet groups the candidate operations of one task family together with the
//     function that maps an input to its Key (the fingerprint of the input's shape) and the
//     checksum of the candidate list.
//   - A Tuner holds, for one identity, the Key -> CacheResult map, the keys currently being
//     benchmarked and the records loaded from a persistent Store.
//   - A LocalTuner is the process-wide registry of Tuners (one per identity) and of TunableSets
//     (one per recipe tag). LocalTuner.Execute is the entry point.
//
// # Locking
//
// Two lock domains exist: the LocalTuner registry lock and each Tuner's own lock. Neither is
// ever held while candidate code runs, so a candidate may itself call Execute on the same or
// another LocalTuner.
//
// # Fallback
//
// While a key has no winner (benchmark pending, or another caller is benchmarking it) Execute
// runs candidate 0. Every TunableSet's first candidate must therefore accept every input the
// key generator can produce.
package tune
