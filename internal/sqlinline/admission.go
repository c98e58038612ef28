package sqlinline

// QAdmissionLockClient serialises admission decisions for one client within
// the surrounding transaction.
const QAdmissionLockClient = `--sql 1f2e3d4c-5b6a-4798-8a7b-6c5d4e3f2a1b
select pg_advisory_xact_lock(hashtext($1));
`

// QAdmissionPruneWindow drops entries at or before now-window, matching MemoryStore.
const QAdmissionPruneWindow = `--sql 8b9c0d1e-2f3a-4b5c-9d6e-7f8a9b0c1d2e
delete from admission_requests
where client_id = $1 and requested_at <= $2;
`

const QAdmissionWindowStats = `--sql 2c3d4e5f-6a7b-4c8d-9e0f-1a2b3c4d5e6f
select count(*), min(requested_at)
from admission_requests
where client_id = $1;
`

const QAdmissionRecordRequest = `--sql 4e5f6a7b-8c9d-4e0f-a1b2-c3d4e5f6a7b8
insert into admission_requests (client_id, requested_at)
values ($1, $2);
`

const QAdmissionSelectConcurrency = `--sql 6a7b8c9d-0e1f-4a2b-b3c4-d5e6f7a8b9c0
select coalesce((select current from admission_concurrency where client_id = $1), 0);
`

const QAdmissionAcquireSlot = `--sql 9d0e1f2a-3b4c-4d5e-8f6a-7b8c9d0e1f2a
insert into admission_concurrency (client_id, current)
values ($1, 1)
on conflict (client_id) do update
set current = admission_concurrency.current + 1
where admission_concurrency.current < $2
returning current;
`

const QAdmissionIncrement = `--sql 0a1b2c3d-4e5f-4a6b-9c7d-8e9f0a1b2c3d
insert into admission_concurrency (client_id, current)
values ($1, 1)
on conflict (client_id) do update
set current = admission_concurrency.current + 1
returning current;
`

const QAdmissionDecrement = `--sql b1c2d3e4-f5a6-4b7c-8d9e-0f1a2b3c4d5e
update admission_concurrency
set current = greatest(current - 1, 0)
where client_id = $1
returning current;
`
