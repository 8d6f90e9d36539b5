// Package pager turns a sequence of page fetches into lazy item and page
// sequences.
//
// A listing operation is described by three things: the first request, a
// PageFunc that fetches and decodes one page, and a Strategy that knows where
// the continuation marker lives in a response and where it goes in the next
// request. The engine itself is generic over the strategy:
//
//	p := pager.New(first, pager.JSONPages[Widget](client, "value"), pager.NextLink("nextLink", "api-version"))
//	for w, err := range p.Items(ctx) {
//		if err != nil {
//			return err
//		}
//		fmt.Println(w.Name)
//	}
//
// Page fetches for one Pager are strictly sequential: fetch N+1 is built from
// the marker of fetch N. A Pager can be converted to a PageIterator with
// IntoPages; a partially consumed page that is still buffered becomes the
// first page yielded, so no page is fetched twice.
//
// Iteration can start from a caller-supplied marker (WithContinuation), which
// is how a listing resumes from a checkpoint or starts at "page 2" directly.
//
// Pagers are not safe for concurrent use. Independent pagers share no state
// and may be drained concurrently, see CollectAll.
package pager
