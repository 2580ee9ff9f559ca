package web

import (
	"html/template"
	"net/http"
)

// IndexPage serves the dashboard page: search box, grade checkboxes, results
// table and a centroid map.
func (s *Server) IndexPage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTemplate.Execute(w, nil); err != nil {
		http.Error(w, "Template error", http.StatusInternalServerError)
	}
}

var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Chicago School Crime Dashboard</title>
<link rel="stylesheet" href="https://unpkg.com/leaflet@1.9.4/dist/leaflet.css">
<script src="https://unpkg.com/leaflet@1.9.4/dist/leaflet.js"></script>
<style>
  body { font-family: sans-serif; margin: 0; display: flex; height: 100vh; }
  #panel { width: 40%; padding: 16px; overflow-y: auto; }
  #map { flex: 1; }
  table { border-collapse: collapse; width: 100%; margin-top: 12px; }
  th, td { border: 1px solid #ccc; padding: 4px 8px; text-align: left; font-size: 13px; }
  th { background: #f0f0f0; }
  #stats { color: #555; font-size: 13px; margin-bottom: 8px; }
  label { margin-right: 10px; }
</style>
</head>
<body>
<div id="panel">
  <h2>Chicago School Crime Dashboard</h2>
  <div id="stats"></div>
  <input id="q" type="text" placeholder="School name or ID" size="30">
  <button onclick="search()">Search</button>
  <div style="margin-top:8px">
    <label><input type="checkbox" class="grade" value="ES" checked> Elementary</label>
    <label><input type="checkbox" class="grade" value="MS" checked> Middle</label>
    <label><input type="checkbox" class="grade" value="HS" checked> High</label>
    <label><input type="checkbox" id="closed"> Closures only</label>
  </div>
  <table id="results">
    <thead><tr id="results-head"></tr></thead>
    <tbody id="results-body"></tbody>
  </table>
</div>
<div id="map"></div>
<script>
var map = L.map('map').setView([41.8781, -87.6298], 11);
L.tileLayer('https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png', {
  attribution: '&copy; OpenStreetMap contributors'
}).addTo(map);
var markers = L.layerGroup().addTo(map);

fetch('/api/stats').then(function (r) { return r.json(); }).then(function (s) {
  document.getElementById('stats').textContent =
    s.schools + ' schools, ' + s.closures + ' closures, ' +
    s.school_crimes + ' school crimes, ' + s.transfers + ' area transfers';
});

function grades() {
  return Array.prototype.slice.call(document.querySelectorAll('.grade:checked'))
    .map(function (el) { return el.value; }).join(',');
}

function search() {
  var q = encodeURIComponent(document.getElementById('q').value);
  var closuresOnly = document.getElementById('closed').checked;
  var url = (closuresOnly ? '/api/closures' : '/api/schools') +
    '?q=' + q + '&grades=' + grades();

  fetch(url).then(function (r) { return r.json(); }).then(function (rows) {
    var head = document.getElementById('results-head');
    var body = document.getElementById('results-body');
    markers.clearLayers();
    body.innerHTML = '';

    if (closuresOnly) {
      head.innerHTML = '<th>ID</th><th>Name</th><th>Grade</th><th>Last open</th><th>Closed</th><th>Source</th>';
      rows.forEach(function (row) {
        var tr = document.createElement('tr');
        tr.innerHTML = '<td>' + row.school_id + '</td><td>' + row.school_nm +
          '</td><td>' + row.grade_cat + '</td><td>' + row.last_open_year +
          '</td><td>' + row.closure_year + '</td><td>' + row.source + '</td>';
        body.appendChild(tr);
      });
    } else {
      head.innerHTML = '<th>ID</th><th>Name</th><th>Address</th><th>Grade</th><th>Year</th>';
      rows.forEach(function (row) {
        var tr = document.createElement('tr');
        tr.innerHTML = '<td>' + row.school_id + '</td><td>' + row.school_nm +
          '</td><td>' + row.school_add + '</td><td>' + row.grade_cat +
          '</td><td>' + row.file_year + '</td>';
        body.appendChild(tr);
        if (row.lat && row.lon) {
          L.marker([row.lat, row.lon]).bindPopup(row.school_nm).addTo(markers);
        }
      });
    }
  });
}

document.getElementById('q').addEventListener('keydown', function (e) {
  if (e.key === 'Enter') search();
});
search();
</script>
</body>
</html>
`))
