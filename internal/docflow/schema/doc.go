// Package schema defines the local record model for DocFlow inspection forms.
//
// # Records
//
// A Record is what the form layer produces when a worker fills out an
// inspection form: a flat map of field ids to string values plus the
// structured parts of the form (checklists, mitigation rows, worker
// acknowledgment rows). The store adds bookkeeping (local id, status,
// timestamps, attempt counter) and the sync engine adds the remote outcome.
//
// Record files are how the form layer hands records over:
//
//	{
//	  "formType": "flra",
//	  "fields": {
//	    "assessmentDate": "2024-05-01",
//	    "jobFileNumber": "A1-23",
//	    "supervisor": "data:image/png;base64,iVBORw0..."
//	  },
//	  "checklists": {"ppe": {"0": {"value": "yes"}}},
//	  "mitigations": [{"hazard": "Ice", "control": "Salt", "initial": "JD"}],
//	  "workerSignatures": [{"name": "Ann", "signature": "data:image/png;base64,..."}]
//	}
//
// # Status State Machine
//
//	(none)  -> pending   Save
//	pending -> pending   Save (edit before sync)
//	pending -> synced    successful sync
//	pending -> error     failed sync
//	error   -> pending   re-edit or automatic re-queue
//	error   -> synced    eventual success
//	synced  -> pending   explicit Save only
//
// Status.CanTransition encodes the engine-side transitions; Save is always
// allowed and always lands on pending.
package schema
