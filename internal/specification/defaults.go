package specification

// defaultSpecSource bundles the page-health checks the driver always
// runs, user specification or not, mirroring original_source's
// check_page_ok: the navigation entry's response status must not be an
// HTTP error, no console.error call may go unreported, and neither an
// uncaught exception nor an unhandled promise rejection may occur
// between captures.
const defaultSpecSource = `
var lib = require('rambler:formula');

var httpStatus = lib.extract(function (state) {
  var entry = state.window.performance.getEntriesByType('navigation')[0];
  return entry ? entry.responseStatus : 0;
});
var consoleErrors = lib.extract(function (state) { return state.console.errors.length; });
var uncaught = lib.extract(function (state) { return state.errors.uncaught_exceptions.length; });
var unhandledRejections = lib.extract(function (state) { return state.errors.unhandled_promise_rejections.length; });

exports.no_http_error_codes = lib.always(
  lib.thunk(function () { return lib.pure((httpStatus.get() || 0) < 400, 'navigation response status is not an error code'); })
);

exports.no_console_errors = lib.always(
  lib.thunk(function () { return lib.pure((consoleErrors.get() || 0) === 0, 'no console.error calls since the last capture'); })
);

exports.no_uncaught_exceptions = lib.always(
  lib.thunk(function () { return lib.pure((uncaught.get() || 0) === 0, 'no uncaught exceptions since the last capture'); })
);

exports.no_unhandled_promise_rejections = lib.always(
  lib.thunk(function () { return lib.pure((unhandledRejections.get() || 0) === 0, 'no unhandled promise rejections since the last capture'); })
);
`
