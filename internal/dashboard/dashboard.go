package dashboard

// dashboardHTML is the human dashboard. It renders live data by polling
// /status every 5 seconds; the action buttons hit the trigger endpoints,
// which redirect straight back here.
const dashboardHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>ePetCare Database Sync Dashboard</title>
<style>
  body { font-family: Arial, sans-serif; line-height: 1.6; margin: 0; padding: 20px; background-color: #f5f5f5; }
  .container { max-width: 1000px; margin: 0 auto; background: white; padding: 20px; border-radius: 5px; box-shadow: 0 0 10px rgba(0,0,0,0.1); }
  h1 { color: #333; border-bottom: 2px solid #eee; padding-bottom: 10px; }
  .status-panel { display: flex; justify-content: space-between; margin-bottom: 20px; }
  .status-box { flex: 1; margin: 0 10px; padding: 15px; border-radius: 5px; box-shadow: 0 0 5px rgba(0,0,0,0.1); }
  .success { background-color: #d4edda; border-left: 5px solid #28a745; }
  .error { background-color: #f8d7da; border-left: 5px solid #dc3545; }
  .warning { background-color: #fff3cd; border-left: 5px solid #ffc107; }
  .unknown { background-color: #e2e3e5; border-left: 5px solid #6c757d; }
  table { width: 100%; border-collapse: collapse; margin-bottom: 20px; }
  table, th, td { border: 1px solid #ddd; }
  th, td { padding: 12px; text-align: left; }
  th { background-color: #f2f2f2; }
  .btn-group { margin-top: 20px; display: flex; gap: 10px; }
  .btn { padding: 10px 15px; border: none; border-radius: 4px; cursor: pointer; font-weight: bold; text-decoration: none; display: inline-block; }
  .btn-primary { background-color: #007bff; color: white; }
  .btn-success { background-color: #28a745; color: white; }
  .btn-warning { background-color: #ffc107; color: #212529; }
  .btn-danger { background-color: #dc3545; color: white; }
  .timestamp { font-size: 0.8em; color: #666; }
</style>
</head>
<body>
<div class="container">
  <h1>ePetCare Database Sync Dashboard</h1>

  <div class="status-panel">
    <div class="status-box" id="overall-status">
      <h3>Overall Status</h3>
      <div id="status-indicator">Loading...</div>
    </div>
    <div class="status-box">
      <h3>Local Database</h3>
      <div id="local-db-info">Loading...</div>
    </div>
    <div class="status-box">
      <h3>Remote API</h3>
      <div id="remote-api-info">Loading...</div>
    </div>
  </div>

  <h2>Sync Details</h2>
  <table>
    <tr><th>Last Check</th><td id="last-check">Loading...</td></tr>
    <tr><th>Last Successful Sync</th><td id="last-success">Loading...</td></tr>
    <tr><th>Last Failed Sync</th><td id="last-failure">Loading...</td></tr>
    <tr><th>Monitor Service</th><td id="monitor-status">Loading...</td></tr>
  </table>

  <h2>Database Details</h2>
  <table>
    <tr><th>Table</th><th>Records</th></tr>
    <tbody id="table-records"><tr><td colspan="2">Loading...</td></tr></tbody>
  </table>

  <h2>Error Log</h2>
  <div id="error-log">Loading...</div>

  <div class="btn-group">
    <a href="/check" class="btn btn-primary">Check Now</a>
    <a href="/sync" class="btn btn-success">Trigger Sync</a>
    <a href="/fix" class="btn btn-warning">Fix Issues</a>
    <a href="/restart-monitor" class="btn btn-danger">Restart Monitor</a>
  </div>

  <p class="timestamp">Dashboard updated: <span id="update-time"></span></p>
</div>

<script>
setInterval(fetchStatus, 5000);
fetchStatus();

function fetchStatus() {
  fetch('/status')
    .then(function(r) { return r.json(); })
    .then(updateDashboard)
    .catch(function(err) { console.error('Error fetching status:', err); });
}

function fmtTime(t) {
  return t ? new Date(t).toLocaleString() : 'Never';
}

function updateDashboard(data) {
  var overall = document.getElementById('status-indicator');
  var cls = 'unknown', text = 'Unknown';
  if (data.status === 'success') { cls = 'success'; text = 'Synchronized'; }
  else if (data.status === 'error') { cls = 'error'; text = 'Error'; }
  else if (data.status === 'disabled') { cls = 'warning'; text = 'Disabled'; }
  document.getElementById('overall-status').className = 'status-box ' + cls;
  overall.innerHTML = '<strong>' + text + '</strong>';

  var db = data.local_db || {};
  document.getElementById('local-db-info').innerHTML =
    '<p><strong>Path:</strong> ' + (db.path || 'Not configured') + '</p>' +
    '<p><strong>Size:</strong> ' + (db.size_mb ? db.size_mb.toFixed(2) + ' MB' : 'Unknown') + '</p>' +
    '<p><strong>Modified:</strong> ' + (db.last_modified || 'Unknown') + '</p>' +
    '<p><strong>Tables:</strong> ' + (db.tables || 0) + '</p>' +
    '<p><strong>Integrity:</strong> ' + (db.integrity || 'Unknown') + '</p>';

  var api = data.remote_api || {};
  var apiStatus = api.status || 'unknown';
  if (apiStatus === 'online') apiStatus = '<span style="color: green;">Online</span>';
  else if (apiStatus === 'error') apiStatus = '<span style="color: red;">Error</span>';
  document.getElementById('remote-api-info').innerHTML =
    '<p><strong>URL:</strong> ' + (api.url || 'Not configured') + '</p>' +
    '<p><strong>Status:</strong> ' + apiStatus + '</p>' +
    '<p><strong>Working Endpoints:</strong> ' + (api.endpoints || []).length + '</p>' +
    '<p><strong>Last Check:</strong> ' + (api.last_check || 'Never') + '</p>';

  document.getElementById('last-check').textContent = fmtTime(data.last_check);
  document.getElementById('last-success').textContent = fmtTime(data.last_success);
  document.getElementById('last-failure').textContent = fmtTime(data.last_failure);

  var mon = document.getElementById('monitor-status');
  mon.innerHTML = data.monitor_running
    ? '<span style="color: green;">Running</span>'
    : '<span style="color: red;">Stopped</span>';

  var rows = '';
  var records = db.records || {};
  Object.keys(records).sort().forEach(function(table) {
    var count = records[table];
    if (count === 'missing') count = '<span style="color: red;">Table missing</span>';
    else if (count === 'error') count = '<span style="color: red;">Error</span>';
    rows += '<tr><td>' + table + '</td><td>' + count + '</td></tr>';
  });
  document.getElementById('table-records').innerHTML =
    rows || '<tr><td colspan="2">No data available</td></tr>';

  var errors = data.errors || [];
  document.getElementById('error-log').innerHTML = errors.length
    ? '<ul><li>' + errors.join('</li><li>') + '</li></ul>'
    : '<p>No errors reported</p>';

  document.getElementById('update-time').textContent = new Date().toLocaleString();
}
</script>
</body>
</html>
`
